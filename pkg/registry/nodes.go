package registry

import (
	"github.com/dukex/operion-dust/pkg/nodes/dust"
)

// RegisterDefaultNodes registers the built-in node factories and the credential
// types they require.
func (r *Registry) RegisterDefaultNodes(opts ...dust.FactoryOption) {
	dustFactory := dust.NewDustNodeFactory(opts...)

	r.RegisterNode(dustFactory)
	r.RegisterCredentialType(dustFactory.CredentialType())
}
