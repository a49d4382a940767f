package main

import (
	"io"
	"os"
)

// Environment holds injectable process dependencies for testability.
type Environment struct {
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultEnvironment returns production dependencies.
func DefaultEnvironment() *Environment {
	return &Environment{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}
