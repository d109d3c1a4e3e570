package server

import (
	"net"

	"mercator-hq/conduit/pkg/pipeline"
)

// Listener is one bound endpoint with its fixed bootstrap options.
type Listener struct {
	name      string
	opts      pipeline.Options
	assembler *pipeline.Assembler
	ln        net.Listener
}

// Name returns the listener name.
func (l *Listener) Name() string { return l.name }

// Options returns the bootstrap options of the listener.
func (l *Listener) Options() pipeline.Options { return l.opts }

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Plan returns the stages a connection accepted now would get.
func (l *Listener) Plan() pipeline.Plan { return l.assembler.Plan() }
