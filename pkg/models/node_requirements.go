package models

import "time"

// InputRequirements defines how the host should wait for and coordinate node inputs.
type InputRequirements struct {
	RequiredPorts []string       `json:"required_ports"`
	OptionalPorts []string       `json:"optional_ports"`
	WaitMode      InputWaitMode  `json:"wait_mode"`
	Timeout       *time.Duration `json:"timeout"`
}

// InputWaitMode defines different strategies for waiting for inputs.
type InputWaitMode string

const (
	// WaitModeAll waits for all required ports to have inputs before executing.
	WaitModeAll InputWaitMode = "all"
	// WaitModeAny executes when any required port has input.
	WaitModeAny InputWaitMode = "any"
)

// DefaultInputRequirements returns the standard requirements for single-input nodes.
func DefaultInputRequirements() InputRequirements {
	return InputRequirements{
		RequiredPorts: []string{"main"},
		OptionalPorts: []string{},
		WaitMode:      WaitModeAny,
	}
}
