// Package id provides unique identifier generation for jobs.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix starts every generated job ID.
const Prefix = "job-"

// Generate creates a new unique job ID.
// Format: job-<uuid v4>
// Example: job-3f2c0a4e-9d1b-4c5e-8a77-0b6c1f2e9d10
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s has the shape of a generated job ID.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
