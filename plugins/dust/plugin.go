// Command dust is the Dust node packaged as a Go plugin:
//
//	go build -buildmode=plugin -o plugins/nodes/dust.so ./plugins/dust
package main

import (
	"github.com/dukex/operion-dust/pkg/nodes/dust"
	"github.com/dukex/operion-dust/pkg/protocol"
)

var factory = dust.NewDustNodeFactory()

var Node protocol.NodeFactory = factory

var Credential = factory.CredentialType()

func main() {}
