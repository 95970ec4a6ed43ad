// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"

	"github.com/dukex/operion-dust/pkg/models"
)

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create creates a new node instance with the given configuration
	Create(ctx context.Context, id string, config map[string]any) (models.Node, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// CredentialRequirer is implemented by factories whose nodes need stored credentials.
type CredentialRequirer interface {
	// Credentials returns the IDs of the credential types the node requires.
	Credentials() []string
}

// OptionsLoader is implemented by factories that populate selection lists at
// configuration time, e.g. a list of remote resources to pick from.
type OptionsLoader interface {
	LoadOptions(ctx context.Context, method string, credentials map[string]any) ([]models.NodeOption, error)
}

// CredentialType declares a kind of stored credential.
type CredentialType interface {
	ID() string
	Name() string
	DocumentationURL() string

	// Schema returns the JSON schema of the credential properties
	Schema() map[string]any

	// Test checks resolved credential properties against the remote service.
	Test(ctx context.Context, values map[string]any) error
}
