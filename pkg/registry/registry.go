// Package registry keeps the node factories and credential types available to a host.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/operion-dust/pkg/models"
	"github.com/dukex/operion-dust/pkg/protocol"
)

type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	nodeFactories   map[string]protocol.NodeFactory
	credentialTypes map[string]protocol.CredentialType
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		logger:          log.With("module", "registry"),
		nodeFactories:   make(map[string]protocol.NodeFactory),
		credentialTypes: make(map[string]protocol.CredentialType),
	}
}

// RegisterNode adds a node factory, replacing any factory with the same ID.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodeFactories[factory.ID()] = factory
}

// RegisterCredentialType adds a credential type, replacing any type with the same ID.
func (r *Registry) RegisterCredentialType(credentialType protocol.CredentialType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.credentialTypes[credentialType.ID()] = credentialType
}

// NodeFactory returns the factory registered for nodeType.
func (r *Registry) NodeFactory(nodeType string) (protocol.NodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.nodeFactories[nodeType]

	return factory, ok
}

// GetAvailableNodes returns every registered node factory ordered by ID.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.NodeFactory, 0, len(r.nodeFactories))
	for _, factory := range r.nodeFactories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// CredentialType returns the credential type registered under id.
func (r *Registry) CredentialType(id string) (protocol.CredentialType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	credentialType, ok := r.credentialTypes[id]

	return credentialType, ok
}

func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (models.Node, error) {
	factory, ok := r.NodeFactory(nodeType)
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	return factory.Create(ctx, id, config)
}

// LoadNodePlugins opens every plugin under pluginsPath/nodes and registers the
// factory exported as "Node" and, when present, the credential type exported as
// "Credential".
func (r *Registry) LoadNodePlugins(pluginsPath string) ([]protocol.NodeFactory, error) {
	plugins, err := openPlugins(r.logger, pluginsPath, "nodes")
	if err != nil {
		return nil, err
	}

	factories := make([]protocol.NodeFactory, 0, len(plugins))

	for path, plg := range plugins {
		factory, err := lookup[protocol.NodeFactory](plg, "Node")
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", path, err)
		}

		r.RegisterNode(factory)
		factories = append(factories, factory)

		if credentialType, err := lookup[protocol.CredentialType](plg, "Credential"); err == nil {
			r.RegisterCredentialType(credentialType)
		}

		r.logger.Info("Loaded node plugin", slog.String("plugin", path), slog.String("node", factory.ID()))
	}

	return factories, nil
}

func openPlugins(logger *slog.Logger, pluginsPath, kind string) (map[string]*plugin.Plugin, error) {
	rootPath := strings.TrimSuffix(pluginsPath, "/") + "/" + kind
	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return map[string]*plugin.Plugin{}, nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "**/*.so")
	if err != nil {
		return nil, err
	}

	topLevel, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return nil, err
	}

	pluginPathList = append(topLevel, pluginPathList...)

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", kind))
	l.Info("Loading plugins", slog.Int("count", len(pluginPathList)))

	plugins := make(map[string]*plugin.Plugin, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		plugins[p] = plg
	}

	return plugins, nil
}

// lookup resolves a plugin symbol as T. Exported variables are looked up as
// pointers, so both T and *T are accepted.
func lookup[T any](plg *plugin.Plugin, symbolName string) (T, error) {
	var zero T

	v, err := plg.Lookup(symbolName)
	if err != nil {
		return zero, err
	}

	switch sym := any(v).(type) {
	case T:
		return sym, nil
	case *T:
		return *sym, nil
	default:
		return zero, fmt.Errorf("symbol %s has unexpected type %T", symbolName, v)
	}
}
