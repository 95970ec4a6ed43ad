package web

import "github.com/dukex/operion-dust/pkg/protocol"

// ExecuteNodeRequest represents the request body for running a node over items.
type ExecuteNodeRequest struct {
	Config      map[string]any            `json:"config"                validate:"required"`
	Items       []map[string]any          `json:"items"                 validate:"omitempty,max=1000"`
	Variables   map[string]any            `json:"variables,omitempty"`
	Credentials map[string]map[string]any `json:"credentials,omitempty"`
}

// NodeTypeResponse describes a registered node factory.
type NodeTypeResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
	Credentials []string       `json:"credentials,omitempty"`
}

// CredentialTypeResponse describes a registered credential type.
type CredentialTypeResponse struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	DocumentationURL string         `json:"documentation_url"`
	Schema           map[string]any `json:"schema"`
}

// TransformNodeType builds the response for a node factory.
func TransformNodeType(factory protocol.NodeFactory) NodeTypeResponse {
	response := NodeTypeResponse{
		ID:          factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
	}

	if requirer, ok := factory.(protocol.CredentialRequirer); ok {
		response.Credentials = requirer.Credentials()
	}

	return response
}
