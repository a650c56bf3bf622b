package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
)

// ErrNoTargetsSelected is returned when the interactive selection is empty.
var ErrNoTargetsSelected = errors.New("no targets selected")

type choice struct {
	kind        report.TargetKind
	label       string
	preselected bool
}

var choices = []choice{
	{kind: report.TargetWeb, label: "Web (browser)", preselected: true},
	{kind: report.TargetAndroid, label: "Android (device)"},
	{kind: report.TargetIntegration, label: "Integration tests", preselected: true},
	{kind: report.TargetHosted, label: "Hosted device farm"},
}

// promptTargets asks which targets to run. The answer is a list of numbers
// separated by commas or spaces; a blank answer keeps the preselected targets.
func promptTargets(in io.Reader, out io.Writer) ([]report.TargetKind, error) {
	fmt.Fprintln(out, "Select the targets to run:")
	for i, c := range choices {
		mark := " "
		if c.preselected {
			mark = "x"
		}
		fmt.Fprintf(out, "  %d) [%s] %s\n", i+1, mark, c.label)
	}
	fmt.Fprint(out, "Numbers (blank keeps the selection): ")

	var answer string
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer = scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read selection: %w", err)
	}

	selected := make(map[int]bool)
	fields := strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		for i, c := range choices {
			selected[i] = c.preselected
		}
	}
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(choices) {
			return nil, fmt.Errorf("invalid selection %q: want a number from 1 to %d", f, len(choices))
		}
		selected[n-1] = true
	}

	var kinds []report.TargetKind
	for i, c := range choices {
		if selected[i] {
			kinds = append(kinds, c.kind)
		}
	}
	if len(kinds) == 0 {
		return nil, ErrNoTargetsSelected
	}
	return kinds, nil
}
