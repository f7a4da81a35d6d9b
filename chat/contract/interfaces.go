package contract

import "context"

// Emit delivers one fragment of the response byte stream. Both
// production timings (token-by-token and single final chunk) go through
// the same Emit, so the caller-facing contract never depends on which
// branch produced the bytes. A non-nil error means the transport is
// gone and production must stop.
type Emit func(fragment string) error

type Completer interface {
	// Complete returns the full first-choice reply in one call.
	Complete(ctx context.Context, msgs []Message, tools []ToolSchema) (Reply, error)

	// CompleteStream forwards content fragments to emit in delivery
	// order as they arrive (empty fragments included) and returns the
	// accumulated reply, including any tool call the model elected.
	CompleteStream(ctx context.Context, msgs []Message, tools []ToolSchema, emit Emit) (Reply, error)
}

type LeadResolver interface {
	Resolve(ctx context.Context, lead Lead) (Resolution, error)
}

// Notifier announces a captured lead on a team channel. Best-effort:
// callers discard the error after logging it.
type Notifier interface {
	Notify(ctx context.Context, lead Lead) error
}
