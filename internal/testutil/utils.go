// Package testutil holds small helpers shared by the package test suites.
package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger for components under test that require one.
// Output goes to stdout prefixed with the running test's name, so lines
// from parallel suites stay attributable.
func TestLogger(t *testing.T) *log.Logger {
	return log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags)
}
