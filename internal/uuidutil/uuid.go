package uuidutil

import (
	"strings"

	"github.com/google/uuid"
)

// Parse parses a run or test identifier.
func Parse(s string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

// IsValid checks if a string is a valid UUID.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// NewRunID generates the identifier for one orchestrator invocation.
func NewRunID() uuid.UUID {
	return uuid.New()
}

// Short returns the first block of a UUID, used in file names and log lines.
func Short(id uuid.UUID) string {
	s := id.String()
	return s[:strings.IndexByte(s, '-')]
}
