// Package bot runs the conversation pipeline for one inbound message:
// resolve the audience, decide whether to answer, ask the NLU service what
// was meant, run the matching handler and send exactly one reply.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/shiori/common/trace"
	"github.com/bdobrica/shiori/internal/shiori/addressing"
	"github.com/bdobrica/shiori/internal/shiori/distribution"
	"github.com/bdobrica/shiori/internal/shiori/identity"
	"github.com/bdobrica/shiori/internal/shiori/intents"
	"github.com/bdobrica/shiori/internal/shiori/message"
	"github.com/bdobrica/shiori/internal/shiori/nlu"
	"github.com/bdobrica/shiori/internal/shiori/observability"
	"github.com/bdobrica/shiori/internal/shiori/response"
	"github.com/bdobrica/shiori/internal/shiori/store"
)

// Resolver turns a distribution expression into its members.
type Resolver interface {
	Resolve(ctx context.Context, expr string) (*distribution.Distribution, error)
}

// Sender delivers a reply.
type Sender interface {
	Send(ctx context.Context, msg response.Message) error
}

// Recorder keeps a record of handled messages.
type Recorder interface {
	RecordExchange(ctx context.Context, ex store.Exchange) error
}

// Deps are the collaborators of a Bot. Recorder is optional.
type Deps struct {
	// SelfID is the bot's member ID on the transport, when it differs from
	// the directory ID.
	SelfID   string
	Identity *identity.Holder
	Resolver Resolver
	NLU      nlu.Gateway
	Router   *intents.Router
	Sender   Sender
	Recorder Recorder
}

// Bot handles inbound messages. It is safe for sequential use by one
// transport loop.
type Bot struct {
	selfID   string
	identity *identity.Holder
	resolver Resolver
	nlu      nlu.Gateway
	router   *intents.Router
	sender   Sender
	recorder Recorder
}

// New returns a Bot wired to deps.
func New(deps Deps) *Bot {
	return &Bot{
		selfID:   deps.SelfID,
		identity: deps.Identity,
		resolver: deps.Resolver,
		nlu:      deps.NLU,
		router:   deps.Router,
		sender:   deps.Sender,
		recorder: deps.Recorder,
	}
}

// HandleMessage runs the pipeline for msg. Messages that are skipped (no
// text, not addressed to the bot) return nil. Resolution, NLU and delivery
// failures are returned after being recorded; they never produce a reply.
// Handler failures do produce one: an apology.
func (b *Bot) HandleMessage(ctx context.Context, msg message.Incoming) error {
	ctx, traceID := trace.Ensure(ctx)
	log := observability.Logger(ctx).With(
		"sender", msg.SourceID,
		"distribution", msg.DistributionExpression,
	)
	ex := store.Exchange{
		TraceID:      traceID,
		SenderID:     msg.SourceID,
		Distribution: msg.DistributionExpression,
		ThreadID:     msg.ThreadID,
	}

	text, ok := msg.Text()
	if !ok {
		log.Info("message has no text part; skipping", "parts", len(msg.Parts))
		b.record(ctx, ex, store.OutcomeNoText, nil)
		return nil
	}

	dist, err := b.resolver.Resolve(ctx, msg.DistributionExpression)
	if err != nil {
		log.Error("failed to resolve distribution", "err", err)
		b.record(ctx, ex, store.OutcomeUnresolved, err)
		return err
	}

	self := b.identity.Current()
	if b.selfID != "" {
		self.ID = b.selfID
	}
	if !addressing.NeedsResponse(self, msg.SourceID, dist, text) {
		log.Debug("message not addressed to the bot")
		b.record(ctx, ex, store.OutcomeIgnored, nil)
		return nil
	}

	result, err := b.nlu.Query(ctx, text, nlu.SessionID(msg.DistributionExpression, msg.ThreadID))
	if err != nil {
		log.Error("NLU query failed", "err", err)
		b.record(ctx, ex, store.OutcomeNLUFailed, err)
		return err
	}
	ex.Action = result.Action
	log = log.With("action", result.Action)

	out, found, handlerErr := b.router.Invoke(ctx, result.Action, intents.Params(result.Parameters))
	if handlerErr != nil {
		log.Error("intent handler failed", "err", handlerErr)
	} else if !found {
		log.Info("no handler for action")
	}

	reply := response.Compose(response.Message{
		Distribution: dist,
		ThreadID:     msg.ThreadID,
		Text:         result.Fulfillment.Speech,
	}, result.Action, out, found, handlerErr)

	if err := b.sender.Send(ctx, reply); err != nil {
		log.Error("failed to send reply", "err", err)
		b.record(ctx, ex, store.OutcomeSendFailed, err)
		return fmt.Errorf("send reply: %w", err)
	}
	log.Info("replied")
	b.record(ctx, ex, store.OutcomeReplied, handlerErr)
	return nil
}

// HandleTrustChange accepts every trust change.
func (b *Bot) HandleTrustChange(ctx context.Context, tc message.TrustChange) error {
	log := observability.Logger(ctx).With("peer", tc.PeerID, "reason", tc.Reason)
	if tc.Accept == nil {
		return errors.New("trust change has no accept action")
	}
	if err := tc.Accept(ctx); err != nil {
		log.Error("failed to accept trust change", "err", err)
		return fmt.Errorf("accept trust change from %s: %w", tc.PeerID, err)
	}
	log.Info("trust change accepted")
	return nil
}

func (b *Bot) record(ctx context.Context, ex store.Exchange, outcome string, cause error) {
	if b.recorder == nil {
		return
	}
	ex.Outcome = outcome
	if cause != nil {
		ex.ErrorMessage = cause.Error()
	}
	if err := b.recorder.RecordExchange(ctx, ex); err != nil {
		observability.Logger(ctx).Warn("failed to record exchange", "err", err)
	}
}
