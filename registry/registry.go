package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/hostbridge/plugin-runtime/transport"
)

// Handler processes a tagged-text request. The payload is opaque to the
// runtime; the handler returns its response payload or an error.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// BinaryHandler processes a fixed-layout binary request. The request bytes
// have already passed the layout's size and version check.
type BinaryHandler func(ctx context.Context, request []byte) ([]byte, error)

type binaryEntry struct {
	handler BinaryHandler
	layout  *transport.Layout
}

// Builder collects handler registrations during startup.
type Builder struct {
	tags   map[string]Handler
	binary map[uint32]binaryEntry
}

// NewBuilder returns an empty registration builder.
func NewBuilder() *Builder {
	return &Builder{
		tags:   make(map[string]Handler),
		binary: make(map[uint32]binaryEntry),
	}
}

// Handle registers a tagged-text handler. Duplicate tags fail startup.
func (b *Builder) Handle(tag string, h Handler) error {
	if tag == "" {
		return fmt.Errorf("empty tag")
	}
	if h == nil {
		return fmt.Errorf("nil handler for tag %q", tag)
	}
	if _, dup := b.tags[tag]; dup {
		return fmt.Errorf("tag %q registered twice", tag)
	}
	b.tags[tag] = h
	return nil
}

// HandleBinary registers a binary handler with its layout descriptor.
func (b *Builder) HandleBinary(id uint32, layout *transport.Layout, h BinaryHandler) error {
	if layout == nil {
		return fmt.Errorf("nil layout for message id %d", id)
	}
	if h == nil {
		return fmt.Errorf("nil handler for message id %d", id)
	}
	if _, dup := b.binary[id]; dup {
		return fmt.Errorf("message id %d registered twice", id)
	}
	b.binary[id] = binaryEntry{handler: h, layout: layout}
	return nil
}

// Build freezes the registrations. The Builder must not be used afterwards.
func (b *Builder) Build() *Registry {
	r := &Registry{
		tags:   make(map[string]Handler, len(b.tags)),
		binary: make(map[uint32]binaryEntry, len(b.binary)),
	}
	for tag, h := range b.tags {
		r.tags[tag] = h
	}
	for id, e := range b.binary {
		r.binary[id] = e
	}
	return r
}

// Registry is the immutable identifier table. Safe for unsynchronized
// concurrent reads.
type Registry struct {
	tags   map[string]Handler
	binary map[uint32]binaryEntry
}

// Lookup resolves a tag.
func (r *Registry) Lookup(tag string) (Handler, bool) {
	h, ok := r.tags[tag]
	return h, ok
}

// LookupBinary resolves a binary message id.
func (r *Registry) LookupBinary(id uint32) (BinaryHandler, *transport.Layout, bool) {
	e, ok := r.binary[id]
	if !ok {
		return nil, nil, false
	}
	return e.handler, e.layout, true
}

// HasBinary reports whether the plugin exposes binary transport at all.
func (r *Registry) HasBinary() bool {
	return len(r.binary) > 0
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.tags))
	for tag := range r.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// MessageIDs returns the registered binary message ids in sorted order.
func (r *Registry) MessageIDs() []uint32 {
	out := make([]uint32, 0, len(r.binary))
	for id := range r.binary {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
