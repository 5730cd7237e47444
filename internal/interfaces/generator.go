package interfaces

import (
	"context"
	"fmt"
)

// CallMeta carries request-scoped identifiers attached to each generator
// invocation and its log record.
type CallMeta struct {
	Op        string // "chapter_bundle" | "rewrite_summary"
	Route     string
	StoryID   string
	WorldID   string
	Day       int
	Revision  int
	RequestID string

	// OnUsage, when set, receives the provider-reported prompt and completion
	// token counts for the call. Wrappers that record round trips set it;
	// pipeline callers leave it nil.
	OnUsage func(tokensIn, tokensOut int)
}

// Generator is the external free-text generator. It is a fallible,
// non-deterministic remote capability: callers must never assume the returned
// text conforms to any schema.
type Generator interface {
	// Invoke sends the prompt and returns the raw response text. A transport
	// or API failure surfaces as *GenerationError; no retries are performed.
	Invoke(ctx context.Context, prompt string, meta CallMeta) (string, error)
}

// GenerationError wraps a transport/API failure calling the generator. It is
// propagated to the caller unmodified.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
