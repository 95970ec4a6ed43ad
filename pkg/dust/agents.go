package dust

import (
	"context"
	"net/http"
	"sort"
	"strings"
)

// AgentConfiguration is an agent available in the workspace.
type AgentConfiguration struct {
	SID         string `json:"sId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Scope       string `json:"scope,omitempty"`
	PictureURL  string `json:"pictureUrl,omitempty"`
}

// AgentOption is one entry of a parameter selection list.
type AgentOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ListAgents returns the workspace agents sorted case-insensitively by name.
func (c *Client) ListAgents(ctx context.Context) ([]AgentConfiguration, error) {
	var resp struct {
		AgentConfigurations []AgentConfiguration `json:"agentConfigurations"`
	}

	err := c.doJSON(ctx, "list_agents", http.MethodGet, c.apiURL("assistant", "agent_configurations"), nil, &resp)
	if err != nil {
		return nil, err
	}

	agents := resp.AgentConfigurations
	sort.SliceStable(agents, func(i, j int) bool {
		return strings.ToLower(agents[i].Name) < strings.ToLower(agents[j].Name)
	})

	return agents, nil
}

// AgentOptions returns the agents as a name/value selection list.
func (c *Client) AgentOptions(ctx context.Context) ([]AgentOption, error) {
	agents, err := c.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	options := make([]AgentOption, 0, len(agents))
	for _, a := range agents {
		options = append(options, AgentOption{Name: a.Name, Value: a.SID})
	}

	return options, nil
}
