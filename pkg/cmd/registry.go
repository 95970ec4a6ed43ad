package cmd

import (
	"log/slog"

	"github.com/dukex/operion-dust/pkg/nodes/dust"
	"github.com/dukex/operion-dust/pkg/registry"
)

// NewRegistry registers the built-in nodes and, when pluginsPath is set, the
// node plugins found there.
func NewRegistry(logger *slog.Logger, pluginsPath string, opts ...dust.FactoryOption) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(opts...)

	if pluginsPath == "" {
		return reg, nil
	}

	if _, err := reg.LoadNodePlugins(pluginsPath); err != nil {
		return nil, err
	}

	return reg, nil
}
