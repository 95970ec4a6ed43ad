package models

// ExecutionContext carries what the host resolved for one node execution.
type ExecutionContext struct {
	ID          string                    `json:"id"`
	Variables   map[string]any            `json:"variables,omitempty"`
	Metadata    map[string]any            `json:"metadata,omitempty"`
	Credentials map[string]map[string]any `json:"-"` // credential type ID -> resolved properties
}

// CredentialValues returns the resolved properties of a credential type.
func (e ExecutionContext) CredentialValues(credentialTypeID string) (map[string]any, bool) {
	values, ok := e.Credentials[credentialTypeID]

	return values, ok
}
