package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/6t3media/chatbot-backend/chat/contract"
	toolx "github.com/6t3media/chatbot-backend/chat/tool"
)

// Apology is the only text an end user ever sees for an internal
// failure; no status codes or stack traces cross the wire.
const Apology = "Sorry, something went wrong on my end. Please try again in a moment."

// Orchestrator drives one conversational turn: a streamed first
// completion with the tool catalog attached, and, when the model elects
// to record a lead, the CRM resolution, the channel notification, and a
// second completion that phrases the confirmation.
type Orchestrator struct {
	completer    contractx.Completer
	leads        contractx.LeadResolver
	notifier     contractx.Notifier
	systemPrompt string
}

func New(
	completer contractx.Completer,
	leads contractx.LeadResolver,
	notifier contractx.Notifier,
	systemPrompt string,
) (*Orchestrator, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if leads == nil {
		return nil, errors.New("lead resolver is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	systemPrompt = strings.TrimSpace(systemPrompt)
	if systemPrompt == "" {
		return nil, errors.New("system prompt is required")
	}

	return &Orchestrator{
		completer:    completer,
		leads:        leads,
		notifier:     notifier,
		systemPrompt: systemPrompt,
	}, nil
}

// HandleTurn produces the whole response stream for one turn. Upstream
// failures never escape: they are logged and converted into a single
// apology fragment, so the returned error is only ever a transport
// write failure (the caller has disconnected).
func (o *Orchestrator) HandleTurn(ctx context.Context, turn contractx.ChatTurn, emit contractx.Emit) error {
	msgs := o.assemble(turn)

	var streamed int
	var writeErr error
	counting := func(fragment string) error {
		if err := emit(fragment); err != nil {
			writeErr = err
			return err
		}
		streamed += len(fragment)
		return nil
	}

	reply, err := o.completer.CompleteStream(ctx, msgs, toolx.Catalog(), counting)
	if err != nil {
		return o.failSafe(ctx, err, writeErr, streamed, emit)
	}

	if !reply.IsToolCall() {
		// Direct branch: every fragment has already been forwarded.
		return nil
	}
	return o.runToolBranch(ctx, msgs, *reply.Tool, emit, streamed)
}

// runToolBranch handles a model-elected function call. A malformed or
// unknown invocation falls back to the direct path: text that
// accompanied the invocation has already been streamed and stands as
// the reply; with no text at all, a fresh streamed completion without
// tools is issued instead. Neither case raises.
func (o *Orchestrator) runToolBranch(
	ctx context.Context,
	msgs []contractx.Message,
	inv contractx.ToolInvocation,
	emit contractx.Emit,
	streamed int,
) error {
	ld, err := toolx.LeadFromInvocation(inv)
	if err != nil {
		log.Warn().Err(err).Str("tool", inv.Name).Msg("ignoring malformed tool call")
		if streamed > 0 {
			return nil
		}

		var writeErr error
		counting := func(fragment string) error {
			if werr := emit(fragment); werr != nil {
				writeErr = werr
				return werr
			}
			streamed += len(fragment)
			return nil
		}
		if _, serr := o.completer.CompleteStream(ctx, msgs, nil, counting); serr != nil {
			return o.failSafe(ctx, serr, writeErr, streamed, emit)
		}
		return nil
	}

	// The resolver call blocks the turn: the confirmation completion
	// must see the real outcome.
	result := o.captureLead(ctx, ld)

	msgs = append(msgs,
		contractx.Message{Role: contractx.RoleAssistant, ToolCalls: []contractx.ToolInvocation{inv}},
		contractx.Message{Role: contractx.RoleTool, Content: result, ToolCallID: inv.ID},
	)

	final, err := o.completer.Complete(ctx, msgs, nil)
	if err != nil {
		return o.failSafe(ctx, err, nil, streamed, emit)
	}
	text := final.Text
	if strings.TrimSpace(text) == "" {
		text = Apology
	}

	// Single chunk: the confirmation is produced whole, then delivered
	// through the same stream the direct branch uses.
	return emit(text)
}

// captureLead resolves the lead and fires the notification. It always
// returns the textual tool result handed back to the model; resolver
// error strings are part of that contract.
func (o *Orchestrator) captureLead(ctx context.Context, ld contractx.Lead) string {
	res, err := o.leads.Resolve(ctx, ld)
	if err != nil {
		log.Error().Err(err).Str("email", ld.Email).Msg("lead resolution failed")
		return "The lead could not be recorded: " + err.Error()
	}

	// Notification failures are discarded here: they must never affect
	// the response being built.
	if nerr := o.notifier.Notify(ctx, ld); nerr != nil {
		log.Warn().Err(nerr).Str("email", ld.Email).Msg("lead notification failed")
	}

	return fmt.Sprintf("Lead recorded. Deal #%d created for %s (%s, %s).",
		res.DealID, ld.Name, ld.Email, ld.Phone)
}

func (o *Orchestrator) assemble(turn contractx.ChatTurn) []contractx.Message {
	msgs := make([]contractx.Message, 0, len(turn.History)+2)
	msgs = append(msgs, contractx.Message{Role: contractx.RoleSystem, Content: o.systemPrompt})
	msgs = append(msgs, turn.History...)
	msgs = append(msgs, contractx.Message{Role: contractx.RoleUser, Content: turn.Message})
	return msgs
}

// failSafe converts an upstream failure into the apology fragment. When
// fragments already reached the caller the stream simply terminates
// (the body is non-empty and an apology appended to half an answer
// would read worse than silence); when the transport itself failed the
// write error is surfaced so the handler can stop.
func (o *Orchestrator) failSafe(ctx context.Context, err, writeErr error, streamed int, emit contractx.Emit) error {
	if writeErr != nil {
		return writeErr
	}
	if ctx.Err() != nil {
		// Caller disconnected mid-turn; committed side effects stand.
		return ctx.Err()
	}

	log.Error().Err(err).Msg("turn failed")
	if streamed > 0 {
		return nil
	}
	return emit(Apology)
}
