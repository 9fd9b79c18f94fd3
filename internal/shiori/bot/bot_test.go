package bot_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bdobrica/shiori/internal/shiori/bot"
	"github.com/bdobrica/shiori/internal/shiori/distribution"
	"github.com/bdobrica/shiori/internal/shiori/handlers"
	"github.com/bdobrica/shiori/internal/shiori/identity"
	"github.com/bdobrica/shiori/internal/shiori/identity/identitytest"
	"github.com/bdobrica/shiori/internal/shiori/intents"
	"github.com/bdobrica/shiori/internal/shiori/message"
	"github.com/bdobrica/shiori/internal/shiori/nlu"
	"github.com/bdobrica/shiori/internal/shiori/response"
	"github.com/bdobrica/shiori/internal/shiori/store"
)

const botID = "@shiori:example.org"

type roomSource map[string][]string

func (r roomSource) ResolveExpression(_ context.Context, expr string) (*distribution.Distribution, error) {
	members, ok := r[expr]
	if !ok {
		return nil, errors.New("no such room")
	}
	return &distribution.Distribution{Expression: expr, Members: members}, nil
}

type fakeNLU struct {
	result   *nlu.Result
	err      error
	queries  []string
	sessions []string
}

func (f *fakeNLU) Query(_ context.Context, text, sessionID string) (*nlu.Result, error) {
	f.queries = append(f.queries, text)
	f.sessions = append(f.sessions, sessionID)
	return f.result, f.err
}

type fakeSender struct {
	sent []response.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg response.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeRecorder struct {
	mu        sync.Mutex
	exchanges []store.Exchange
}

func (f *fakeRecorder) RecordExchange(_ context.Context, ex store.Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, ex)
	return nil
}

func (f *fakeRecorder) last(t *testing.T) store.Exchange {
	t.Helper()
	if len(f.exchanges) == 0 {
		t.Fatal("no exchange recorded")
	}
	return f.exchanges[len(f.exchanges)-1]
}

type fixedChoice int

func (f fixedChoice) IntN(int) int { return int(f) }

type fixture struct {
	bot      *bot.Bot
	nlu      *fakeNLU
	sender   *fakeSender
	recorder *fakeRecorder
	dir      *identitytest.Directory
}

func newFixture(t *testing.T, result *nlu.Result) *fixture {
	t.Helper()
	user := identity.Identity{
		ID:        "u-1",
		FirstName: "Shiori",
		LastName:  "Bot",
		Tag:       identity.Tag{ID: "t-1", Slug: "shiori"},
	}
	dir := identitytest.New(user)
	holder := identity.NewHolder(dir, user)
	rooms := roomSource{
		"!dm:example.org":    {botID, "@alice:example.org"},
		"!group:example.org": {botID, "@alice:example.org", "@bob:example.org"},
	}
	f := &fixture{
		nlu:      &fakeNLU{result: result},
		sender:   &fakeSender{},
		recorder: &fakeRecorder{},
		dir:      dir,
	}
	f.bot = bot.New(bot.Deps{
		SelfID:   botID,
		Identity: holder,
		Resolver: distribution.NewCache(rooms),
		NLU:      f.nlu,
		Router:   intents.NewRouter(handlers.New(holder, fixedChoice(0)).Routes()...),
		Sender:   f.sender,
		Recorder: f.recorder,
	})
	return f
}

func incoming(room, text string) message.Incoming {
	return message.Incoming{
		SourceID:               "@alice:example.org",
		DistributionExpression: room,
		Parts:                  []message.Part{{Type: message.TypeTextPlain, Value: text}},
	}
}

func TestHandleMessage_DirectConversation(t *testing.T) {
	f := newFixture(t, &nlu.Result{Action: "name.agent.get", Fulfillment: nlu.Fulfillment{Speech: "default"}})

	if err := f.bot.HandleMessage(context.Background(), incoming("!dm:example.org", "what is your name?")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.sender.sent))
	}
	got := f.sender.sent[0]
	if got.Text != "I'm Shiori Bot." {
		t.Errorf("reply = %q", got.Text)
	}
	if got.Distribution == nil || got.Distribution.Expression != "!dm:example.org" {
		t.Errorf("reply sent to %+v", got.Distribution)
	}
	ex := f.recorder.last(t)
	if ex.Outcome != store.OutcomeReplied || ex.Action != "name.agent.get" || ex.TraceID == "" {
		t.Errorf("unexpected exchange: %+v", ex)
	}
}

func TestHandleMessage_GroupRequiresMention(t *testing.T) {
	f := newFixture(t, &nlu.Result{Action: "name.agent.get"})

	if err := f.bot.HandleMessage(context.Background(), incoming("!group:example.org", "lunch anyone?")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(f.nlu.queries) != 0 || len(f.sender.sent) != 0 {
		t.Fatalf("unaddressed message reached NLU/sender")
	}
	if f.recorder.last(t).Outcome != store.OutcomeIgnored {
		t.Errorf("outcome = %q", f.recorder.last(t).Outcome)
	}

	if err := f.bot.HandleMessage(context.Background(), incoming("!group:example.org", "SHIORI, who are you?")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("mention did not produce a reply")
	}
}

func TestHandleMessage_NoText(t *testing.T) {
	f := newFixture(t, &nlu.Result{})
	msg := message.Incoming{
		DistributionExpression: "!dm:example.org",
		Parts:                  []message.Part{{Type: "image/png", Value: "..."}},
	}
	if err := f.bot.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(f.sender.sent) != 0 || f.recorder.last(t).Outcome != store.OutcomeNoText {
		t.Errorf("message without text was not skipped")
	}
}

func TestHandleMessage_UnknownAction(t *testing.T) {
	f := newFixture(t, &nlu.Result{Action: "smalltalk.greetings", Fulfillment: nlu.Fulfillment{Speech: "Hello!"}})
	if err := f.bot.HandleMessage(context.Background(), incoming("!dm:example.org", "hi")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	want := response.NothingToDo("smalltalk.greetings")
	if len(f.sender.sent) != 1 || f.sender.sent[0].Text != want {
		t.Errorf("sent = %+v, want %q", f.sender.sent, want)
	}
}

func TestHandleMessage_HandlerFailureApologises(t *testing.T) {
	f := newFixture(t, &nlu.Result{
		Action:     "name.agent.change",
		Parameters: map[string]any{"type": "tag", "name": "Night Owl"},
	})
	f.dir.Fail = true

	if err := f.bot.HandleMessage(context.Background(), incoming("!dm:example.org", "change your tag to Night Owl")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(f.sender.sent) != 1 || !strings.HasPrefix(f.sender.sent[0].Text, response.ApologyPrefix) {
		t.Fatalf("expected an apology, got %+v", f.sender.sent)
	}
	ex := f.recorder.last(t)
	if ex.Outcome != store.OutcomeReplied || ex.ErrorMessage == "" {
		t.Errorf("unexpected exchange: %+v", ex)
	}
}

func TestHandleMessage_FailuresProduceNoReply(t *testing.T) {
	t.Run("resolution", func(t *testing.T) {
		f := newFixture(t, &nlu.Result{Action: "name.agent.get"})
		err := f.bot.HandleMessage(context.Background(), incoming("!unknown:example.org", "hi"))
		var resErr *distribution.ResolutionError
		if !errors.As(err, &resErr) {
			t.Fatalf("expected ResolutionError, got %v", err)
		}
		if len(f.sender.sent) != 0 || f.recorder.last(t).Outcome != store.OutcomeUnresolved {
			t.Errorf("resolution failure handled wrongly")
		}
	})

	t.Run("nlu", func(t *testing.T) {
		f := newFixture(t, nil)
		f.nlu.err = &nlu.RequestError{Backend: "dialogflow", Status: 500, Err: errors.New("boom")}
		err := f.bot.HandleMessage(context.Background(), incoming("!dm:example.org", "hi"))
		var reqErr *nlu.RequestError
		if !errors.As(err, &reqErr) {
			t.Fatalf("expected RequestError, got %v", err)
		}
		if len(f.sender.sent) != 0 || f.recorder.last(t).Outcome != store.OutcomeNLUFailed {
			t.Errorf("NLU failure handled wrongly")
		}
	})

	t.Run("send", func(t *testing.T) {
		f := newFixture(t, &nlu.Result{Action: "name.agent.get"})
		f.sender.err = errors.New("homeserver down")
		if err := f.bot.HandleMessage(context.Background(), incoming("!dm:example.org", "hi")); err == nil {
			t.Fatal("expected an error")
		}
		if f.recorder.last(t).Outcome != store.OutcomeSendFailed {
			t.Errorf("outcome = %q", f.recorder.last(t).Outcome)
		}
	})
}

func TestHandleMessage_SessionPerThread(t *testing.T) {
	f := newFixture(t, &nlu.Result{Action: "name.agent.get"})
	ctx := context.Background()

	a := incoming("!dm:example.org", "hi")
	b := a
	b.ThreadID = "$thread"
	for _, m := range []message.Incoming{a, a, b} {
		if err := f.bot.HandleMessage(ctx, m); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}
	s := f.nlu.sessions
	if s[0] != s[1] || s[0] == s[2] {
		t.Errorf("sessions = %v", s)
	}
	if f.sender.sent[2].ThreadID != "$thread" {
		t.Errorf("reply left the thread")
	}
}

func TestHandleTrustChange(t *testing.T) {
	f := newFixture(t, nil)
	accepted := false
	err := f.bot.HandleTrustChange(context.Background(), message.TrustChange{
		PeerID: "@alice:example.org",
		Accept: func(context.Context) error { accepted = true; return nil },
	})
	if err != nil || !accepted {
		t.Fatalf("trust change not accepted: %v", err)
	}

	failing := message.TrustChange{Accept: func(context.Context) error { return errors.New("nope") }}
	if err := f.bot.HandleTrustChange(context.Background(), failing); err == nil {
		t.Error("expected error from failed accept")
	}
}
