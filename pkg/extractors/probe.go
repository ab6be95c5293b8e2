// Package extractors pulls per-document metadata and outgoing links out of
// captured payloads. Each document family has a Probe; the Router picks one
// per record and runs it against a scoped temporary copy of the payload.
package extractors

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when a probe runs past its deadline.
	ErrTimeout = errors.New("extraction timed out")
	// ErrPanic wraps a panic recovered from a probe.
	ErrPanic = errors.New("extraction panicked")
)

// Document is a payload copied to disk for a probe.
type Document struct {
	Path        string
	URL         string
	ContentType *string
}

// Link is one anchor found in an HTML document.
type Link struct {
	Text  string
	Href  *string
	Class *string
	ID    *string
}

// Result holds what a probe found. Metadata is nil when the document yielded
// nothing.
type Result struct {
	Metadata map[string]any
	Links    []Link
}

// Probe extracts metadata from one document.
type Probe interface {
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context, doc Document) (*Result, error)

func (f ProbeFunc) Extract(ctx context.Context, doc Document) (*Result, error) {
	return f(ctx, doc)
}
