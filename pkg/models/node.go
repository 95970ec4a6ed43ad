// Package models defines the node contract shared between node hosts and node plugins.
package models

import (
	"context"
	"time"
)

// Node is an executable node instance created by a protocol.NodeFactory.
type Node interface {
	ID() string
	Type() string

	// Execute runs the node once for the inputs collected on its ports and returns
	// results keyed by output port name.
	Execute(ctx context.Context, execCtx ExecutionContext, inputs map[string]NodeResult) (map[string]NodeResult, error)

	InputPorts() []InputPort
	OutputPorts() []OutputPort
	InputRequirements() InputRequirements

	// Validate checks a configuration map without creating a node.
	Validate(config map[string]any) error
}

// NodeResult represents the result of a node execution.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)

// NodeOption is one entry of a dynamically loaded parameter selection list.
type NodeOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
