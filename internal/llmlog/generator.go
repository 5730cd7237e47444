package llmlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"moontale/internal/interfaces"
)

// LoggedGenerator wraps a Generator and records every round trip to the
// sink. Recording happens after the call returns and cannot fail the call.
type LoggedGenerator struct {
	inner interfaces.Generator
	sink  Sink
	model string
}

func NewLoggedGenerator(inner interfaces.Generator, sink Sink, model string) *LoggedGenerator {
	return &LoggedGenerator{inner: inner, sink: sink, model: model}
}

func (g *LoggedGenerator) Invoke(ctx context.Context, prompt string, meta interfaces.CallMeta) (string, error) {
	start := time.Now()
	var tokensIn, tokensOut int
	meta.OnUsage = func(in, out int) { tokensIn, tokensOut = in, out }
	response, err := g.inner.Invoke(ctx, prompt, meta)

	rec := Record{
		ID:        uuid.NewString(),
		Timestamp: start,

		Op:        meta.Op,
		Route:     meta.Route,
		StoryID:   meta.StoryID,
		WorldID:   meta.WorldID,
		Day:       meta.Day,
		Revision:  meta.Revision,
		RequestID: meta.RequestID,

		Model:      g.model,
		Prompt:     prompt,
		Response:   response,
		Status:     StatusOK,
		DurationMs: time.Since(start).Milliseconds(),
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
	}
	if err != nil {
		rec.Status = StatusError
		rec.Error = err.Error()
	}

	// Store against a fresh context: the call context may already be
	// cancelled when the provider timed out, and the record of that failure
	// is exactly what we want to keep.
	storeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	g.sink.Store(storeCtx, rec)

	return response, err
}
