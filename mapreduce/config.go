package mapreduce

import (
	"errors"
	"fmt"
)

type FailurePolicy string

const (
	// Abort fails the run as soon as a phase finishes with failed tasks.
	Abort FailurePolicy = "abort"
	// Continue runs every phase and only reports failed tasks.
	Continue FailurePolicy = "continue"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	WorkDir       string
	NumWorkers    int
	NumReduce     int
	MaxAttempts   int // attempts per task before it is reported failed
	FailurePolicy FailurePolicy
	ResetOnStart  bool // clear intermediate and output artifacts first
	LogLevel      string
}

func DefaultConfig() Config {
	return Config{
		WorkDir:       "data",
		NumWorkers:    4,
		NumReduce:     5,
		MaxAttempts:   1,
		FailurePolicy: Abort,
		ResetOnStart:  true,
		LogLevel:      "INFO",
	}
}

func (c Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("%w: need at least one worker, got %v", ErrInvalidConfig, c.NumWorkers)
	}
	if c.NumReduce < 1 {
		return fmt.Errorf("%w: need at least one reduce task, got %v", ErrInvalidConfig, c.NumReduce)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: need at least one attempt per task, got %v", ErrInvalidConfig, c.MaxAttempts)
	}
	switch c.FailurePolicy {
	case Abort, Continue:
	default:
		return fmt.Errorf("%w: unknown failure policy %q", ErrInvalidConfig, c.FailurePolicy)
	}
	return nil
}
