package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		return
	}
	fmt.Fprintln(stdout, string(data))
}

func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

func printMessage(msg string) {
	fmt.Fprintln(stdout, msg)
}

func confirmAction(prompt string, skipConfirm bool) bool {
	if skipConfirm {
		return true
	}

	fmt.Fprintf(stdout, "%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
	return false
}

// valueOrDash renders empty table cells as "-".
func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
