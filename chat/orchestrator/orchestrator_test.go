package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/6t3media/chatbot-backend/chat/contract"
	toolx "github.com/6t3media/chatbot-backend/chat/tool"
)

const testPrompt = "You are a helpful assistant."

var validInvocation = contractx.ToolInvocation{
	ID:   "call_1",
	Name: toolx.ToolCreatePipedriveDeal,
	Arguments: map[string]string{
		"name":  "John Doe",
		"email": "john@x.com",
		"phone": "0551111111",
	},
}

// scriptedCall describes one completer invocation: the fragments it
// emits before returning its reply.
type scriptedCall struct {
	fragments []string
	reply     contractx.Reply
	err       error
}

type fakeCompleter struct {
	streamCalls   []scriptedCall
	completeCalls []scriptedCall

	streamTools  [][]contractx.ToolSchema
	completeMsgs [][]contractx.Message
}

func (f *fakeCompleter) CompleteStream(
	ctx context.Context,
	msgs []contractx.Message,
	tools []contractx.ToolSchema,
	emit contractx.Emit,
) (contractx.Reply, error) {
	if len(f.streamCalls) == 0 {
		return contractx.Reply{}, errors.New("unexpected CompleteStream call")
	}
	call := f.streamCalls[0]
	f.streamCalls = f.streamCalls[1:]
	f.streamTools = append(f.streamTools, tools)

	for _, fragment := range call.fragments {
		if err := emit(fragment); err != nil {
			return contractx.Reply{}, err
		}
	}
	return call.reply, call.err
}

func (f *fakeCompleter) Complete(
	ctx context.Context,
	msgs []contractx.Message,
	tools []contractx.ToolSchema,
) (contractx.Reply, error) {
	if len(f.completeCalls) == 0 {
		return contractx.Reply{}, errors.New("unexpected Complete call")
	}
	call := f.completeCalls[0]
	f.completeCalls = f.completeCalls[1:]
	f.completeMsgs = append(f.completeMsgs, msgs)
	return call.reply, call.err
}

type fakeResolver struct {
	calls []contractx.Lead
	res   contractx.Resolution
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, ld contractx.Lead) (contractx.Resolution, error) {
	f.calls = append(f.calls, ld)
	return f.res, f.err
}

type fakeNotifier struct {
	calls []contractx.Lead
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, ld contractx.Lead) error {
	f.calls = append(f.calls, ld)
	return f.err
}

type sink struct {
	fragments []string
	failAfter int
	err       error
}

func (s *sink) emit(fragment string) error {
	if s.err != nil && len(s.fragments) >= s.failAfter {
		return s.err
	}
	s.fragments = append(s.fragments, fragment)
	return nil
}

func (s *sink) body() string {
	return strings.Join(s.fragments, "")
}

func newTestOrchestrator(t *testing.T, c *fakeCompleter, r *fakeResolver, n *fakeNotifier) *Orchestrator {
	t.Helper()

	o, err := New(c, r, n, testPrompt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func mustTurn(t *testing.T, message string, history []contractx.Message) contractx.ChatTurn {
	t.Helper()

	turn, err := contractx.NewChatTurn(message, history)
	if err != nil {
		t.Fatalf("NewChatTurn() error = %v", err)
	}
	return turn
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	t.Parallel()

	c, r, n := &fakeCompleter{}, &fakeResolver{}, &fakeNotifier{}
	if _, err := New(nil, r, n, testPrompt); err == nil {
		t.Fatal("New() must reject a nil completer")
	}
	if _, err := New(c, nil, n, testPrompt); err == nil {
		t.Fatal("New() must reject a nil lead resolver")
	}
	if _, err := New(c, r, nil, testPrompt); err == nil {
		t.Fatal("New() must reject a nil notifier")
	}
	if _, err := New(c, r, n, "  \n "); err == nil {
		t.Fatal("New() must reject a blank system prompt")
	}
}

func TestHandleTurnDirectReply(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{
			fragments: []string{"Hel", "lo", " there"},
			reply:     contractx.Reply{Text: "Hello there"},
		}},
	}
	resolver := &fakeResolver{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, completer, resolver, notifier)

	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "hi", nil), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	if out.body() != "Hello there" {
		t.Fatalf("streamed body = %q", out.body())
	}
	if len(out.fragments) != 3 {
		t.Fatalf("fragment count = %d, want 3", len(out.fragments))
	}
	if len(resolver.calls) != 0 || len(notifier.calls) != 0 {
		t.Fatal("direct reply must not touch the lead workflow")
	}
	if len(completer.streamTools) != 1 || len(completer.streamTools[0]) == 0 {
		t.Fatal("first completion must carry the tool catalog")
	}
}

func TestHandleTurnToolBranch(t *testing.T) {
	t.Parallel()

	inv := validInvocation
	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{
			reply: contractx.Reply{Tool: &inv},
		}},
		completeCalls: []scriptedCall{{
			reply: contractx.Reply{Text: "All set! We'll be in touch shortly."},
		}},
	}
	resolver := &fakeResolver{res: contractx.Resolution{PersonID: 42, DealID: 9}}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, completer, resolver, notifier)

	history := []contractx.Message{
		{Role: contractx.RoleUser, Content: "I want a website"},
		{Role: contractx.RoleAssistant, Content: "Happy to help. What's your name?"},
	}
	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "John Doe, john@x.com, 0551111111", history), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	if len(out.fragments) != 1 || out.fragments[0] != "All set! We'll be in touch shortly." {
		t.Fatalf("tool branch must emit the confirmation as one chunk, got %v", out.fragments)
	}
	if len(resolver.calls) != 1 {
		t.Fatalf("resolver calls = %d, want 1", len(resolver.calls))
	}
	if len(notifier.calls) != 1 || notifier.calls[0].Email != "john@x.com" {
		t.Fatalf("notifier calls = %v, want the captured lead", notifier.calls)
	}

	// The confirmation completion must see the tool exchange without the
	// tool catalog reattached.
	if len(completer.completeMsgs) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(completer.completeMsgs))
	}
	msgs := completer.completeMsgs[0]
	last, prev := msgs[len(msgs)-1], msgs[len(msgs)-2]
	if prev.Role != contractx.RoleAssistant || len(prev.ToolCalls) != 1 || prev.ToolCalls[0].ID != "call_1" {
		t.Fatalf("assistant tool-call message missing: %#v", prev)
	}
	if last.Role != contractx.RoleTool || last.ToolCallID != "call_1" {
		t.Fatalf("tool result message missing: %#v", last)
	}
	if !strings.Contains(last.Content, "Deal #9") {
		t.Fatalf("tool result = %q, want deal id", last.Content)
	}
}

func TestHandleTurnResolverFailureFeedsModel(t *testing.T) {
	t.Parallel()

	inv := validInvocation
	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{
			reply: contractx.Reply{Tool: &inv},
		}},
		completeCalls: []scriptedCall{{
			reply: contractx.Reply{Text: "I couldn't save your details, sorry."},
		}},
	}
	resolver := &fakeResolver{err: errors.New("contact lookup failed: boom")}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, completer, resolver, notifier)

	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "details", nil), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	if len(notifier.calls) != 0 {
		t.Fatal("a failed resolution must not trigger a notification")
	}
	msgs := completer.completeMsgs[0]
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "could not be recorded") || !strings.Contains(last.Content, "boom") {
		t.Fatalf("tool result = %q, want the failure reason", last.Content)
	}
	if out.body() != "I couldn't save your details, sorry." {
		t.Fatalf("streamed body = %q", out.body())
	}
}

func TestHandleTurnNotifierFailureIsIsolated(t *testing.T) {
	t.Parallel()

	inv := validInvocation
	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{
			reply: contractx.Reply{Tool: &inv},
		}},
		completeCalls: []scriptedCall{{
			reply: contractx.Reply{Text: "All set!"},
		}},
	}
	resolver := &fakeResolver{res: contractx.Resolution{PersonID: 42, DealID: 9}}
	notifier := &fakeNotifier{err: errors.New("webhook http status=500")}
	o := newTestOrchestrator(t, completer, resolver, notifier)

	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "details", nil), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if out.body() != "All set!" {
		t.Fatalf("streamed body = %q, notifier failure leaked into the reply", out.body())
	}
	msgs := completer.completeMsgs[0]
	if !strings.Contains(msgs[len(msgs)-1].Content, "Lead recorded") {
		t.Fatal("tool result must still report success when only the notification failed")
	}
}

func TestHandleTurnMalformedToolWithStreamedText(t *testing.T) {
	t.Parallel()

	bad := contractx.ToolInvocation{
		ID:        "call_1",
		Name:      toolx.ToolCreatePipedriveDeal,
		Arguments: map[string]string{"name": "John Doe"},
	}
	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{
			fragments: []string{"Let me note that down."},
			reply:     contractx.Reply{Text: "Let me note that down.", Tool: &bad},
		}},
	}
	resolver := &fakeResolver{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, completer, resolver, notifier)

	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "details", nil), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	if out.body() != "Let me note that down." {
		t.Fatalf("streamed body = %q, want the accompanying text to stand", out.body())
	}
	if len(resolver.calls) != 0 || len(notifier.calls) != 0 {
		t.Fatal("a malformed tool call must never reach the lead workflow")
	}
}

func TestHandleTurnMalformedToolWithoutText(t *testing.T) {
	t.Parallel()

	bad := contractx.ToolInvocation{ID: "call_1", Name: "unknown_function"}
	completer := &fakeCompleter{
		streamCalls: []scriptedCall{
			{reply: contractx.Reply{Tool: &bad}},
			{fragments: []string{"Could you share your contact details?"},
				reply: contractx.Reply{Text: "Could you share your contact details?"}},
		},
	}
	resolver := &fakeResolver{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, completer, resolver, notifier)

	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "details", nil), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	if out.body() != "Could you share your contact details?" {
		t.Fatalf("streamed body = %q, want the fallback completion", out.body())
	}
	if len(completer.streamTools) != 2 {
		t.Fatalf("stream calls = %d, want a retry", len(completer.streamTools))
	}
	if completer.streamTools[1] != nil {
		t.Fatal("the fallback completion must not reattach the tool catalog")
	}
	if len(resolver.calls) != 0 {
		t.Fatal("an unknown tool call must never reach the lead workflow")
	}
}

func TestHandleTurnUpstreamFailure(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{err: errors.New("completion http status=502")}},
	}
	o := newTestOrchestrator(t, completer, &fakeResolver{}, &fakeNotifier{})

	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "hi", nil), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if len(out.fragments) != 1 || out.fragments[0] != Apology {
		t.Fatalf("fragments = %v, want exactly the apology", out.fragments)
	}
}

func TestHandleTurnUpstreamFailureMidStream(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{
			fragments: []string{"We offer "},
			err:       errors.New("stream read: connection reset"),
		}},
	}
	o := newTestOrchestrator(t, completer, &fakeResolver{}, &fakeNotifier{})

	out := &sink{}
	err := o.HandleTurn(context.Background(), mustTurn(t, "hi", nil), out.emit)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if out.body() != "We offer " {
		t.Fatalf("streamed body = %q, apology must not be appended to a partial answer", out.body())
	}
}

func TestHandleTurnWriteFailureSurfaces(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{
			fragments: []string{"Hel", "lo"},
			reply:     contractx.Reply{Text: "Hello"},
		}},
	}
	o := newTestOrchestrator(t, completer, &fakeResolver{}, &fakeNotifier{})

	wantErr := errors.New("client gone")
	out := &sink{failAfter: 1, err: wantErr}
	err := o.HandleTurn(context.Background(), mustTurn(t, "hi", nil), out.emit)
	if !errors.Is(err, wantErr) {
		t.Fatalf("HandleTurn() error = %v, want the transport error", err)
	}
}

func TestHandleTurnPrependsSystemPrompt(t *testing.T) {
	t.Parallel()

	var gotMsgs []contractx.Message
	completer := &fakeCompleter{
		streamCalls: []scriptedCall{{reply: contractx.Reply{Text: "ok"}}},
	}
	o := newTestOrchestrator(t, completer, &fakeResolver{}, &fakeNotifier{})

	history := []contractx.Message{{Role: contractx.RoleUser, Content: "earlier"}}
	gotMsgs = o.assemble(mustTurn(t, "now", history))

	if len(gotMsgs) != 3 {
		t.Fatalf("message count = %d, want 3", len(gotMsgs))
	}
	if gotMsgs[0].Role != contractx.RoleSystem || gotMsgs[0].Content != testPrompt {
		t.Fatalf("first message = %#v, want the system prompt", gotMsgs[0])
	}
	if gotMsgs[1].Content != "earlier" || gotMsgs[2].Content != "now" {
		t.Fatalf("history ordering broken: %#v", gotMsgs[1:])
	}
}
