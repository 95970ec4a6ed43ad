package dust

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// CredentialTypeID identifies the Dust API credential type.
	CredentialTypeID = "dustApi"

	RegionEU = "EU"
	RegionUS = "US"

	BaseURLEU = "https://eu.dust.tt"
	BaseURLUS = "https://dust.tt"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials are the stored values needed to talk to a Dust workspace.
type Credentials struct {
	APIKey      string `json:"apiKey"      validate:"required"`
	WorkspaceID string `json:"workspaceId" validate:"required"`
	Region      string `json:"region"      validate:"omitempty,oneof=EU US"`
}

// Validate checks that the credentials are usable.
func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: credentials: %w", ErrInvalidRequest, err)
	}

	return nil
}

// BaseURL returns the API host for the configured region.
func (c Credentials) BaseURL() string {
	if c.Region == RegionEU {
		return BaseURLEU
	}

	return BaseURLUS
}

// CredentialsFromMap reads credentials from a resolved credential property map.
func CredentialsFromMap(values map[string]any) Credentials {
	creds := Credentials{Region: RegionUS}

	if v, ok := values["apiKey"].(string); ok {
		creds.APIKey = v
	}

	if v, ok := values["workspaceId"].(string); ok {
		creds.WorkspaceID = v
	}

	if v, ok := values["region"].(string); ok && v != "" {
		creds.Region = v
	}

	return creds
}

// TestCredentials checks the credentials against the agent configuration endpoint.
func (c *Client) TestCredentials(ctx context.Context) error {
	_, err := c.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("credential test failed: %w", err)
	}

	return nil
}

// CredentialSchema describes the dustApi credential properties.
func CredentialSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"apiKey": map[string]any{
				"type":        "string",
				"title":       "API Key",
				"description": "Dust API key, sent as a bearer token",
				"format":      "password",
			},
			"workspaceId": map[string]any{
				"type":        "string",
				"title":       "Workspace ID",
				"description": "Identifier of the Dust workspace",
			},
			"region": map[string]any{
				"type":    "string",
				"title":   "Region",
				"enum":    []string{RegionEU, RegionUS},
				"default": RegionUS,
			},
		},
		"required": []string{"apiKey", "workspaceId"},
	}
}
