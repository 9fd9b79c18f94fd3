// Package matrix connects Shiori to a Matrix homeserver: inbound room messages
// and invites, outbound replies, and room membership lookups.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/shiori/common/retry"
	"github.com/bdobrica/shiori/internal/shiori/distribution"
	"github.com/bdobrica/shiori/internal/shiori/message"
	"github.com/bdobrica/shiori/internal/shiori/response"
)

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start. Rooms the bot is invited to later are
	// joined through the trust change handler.
	Rooms []string
	// State persists the sync position. When nil, an in-memory store is
	// used and the client skips events older than its start time instead.
	State SyncState
}

// Handlers receive inbound events. Either may be nil.
type Handlers struct {
	OnMessage     func(ctx context.Context, msg message.Incoming)
	OnTrustChange func(ctx context.Context, change message.TrustChange)
}

// Client wraps the Matrix client
type Client struct {
	client    *mautrix.Client
	config    *Config
	handlers  Handlers
	startedAt time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a new Matrix client
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	if config.State != nil {
		client.Store = syncStore{state: config.State}
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store")
	}

	return &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// UserID returns the bot's Matrix user ID.
func (c *Client) UserID() string {
	return c.config.UserID
}

// Start joins the configured rooms and begins syncing in the background.
func (c *Client) Start(ctx context.Context, h Handlers) error {
	c.handlers = h
	c.startedAt = time.Now()

	slog.Warn("Matrix E2EE is not enabled; messages are transmitted in plaintext")

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("unexpected Matrix syncer type")
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMember)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	go c.syncLoop(ctx)
	return nil
}

// syncLoop keeps /sync running, reconnecting with exponential back-off.
func (c *Client) syncLoop(ctx context.Context) {
	defer close(c.done)
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := c.client.SyncWithContext(ctx)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err == nil {
			return
		}
		slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop stops syncing and waits for the sync loop to exit.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.client.StopSync()
	})
	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		slog.Warn("Matrix sync loop did not stop in time")
	}
}

// Send posts msg to its distribution, as HTML with a plain-text fallback when
// HTML is set, and in msg.ThreadID's thread when one is given.
func (c *Client) Send(ctx context.Context, msg response.Message) error {
	if msg.Distribution == nil {
		return errors.New("send: message has no distribution")
	}
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    msg.Text,
	}
	if msg.HTML != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = msg.HTML
	}
	if msg.ThreadID != "" {
		content.RelatesTo = &event.RelatesTo{
			Type:    event.RelThread,
			EventID: id.EventID(msg.ThreadID),
		}
	}

	roomID := id.RoomID(msg.Distribution.Expression)
	if _, err := c.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", roomID, err)
	}
	return nil
}

// ResolveExpression resolves a room ID into the room's joined members.
// Members are sorted so that the result is stable.
func (c *Client) ResolveExpression(ctx context.Context, expr string) (*distribution.Distribution, error) {
	var resp *mautrix.RespJoinedMembers
	err := retry.Do(ctx, retry.DefaultPolicy, "matrix.joined_members", func(ctx context.Context) error {
		var err error
		resp, err = c.client.JoinedMembers(ctx, id.RoomID(expr))
		if errors.Is(err, mautrix.MForbidden) || errors.Is(err, mautrix.MNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get members of %s: %w", expr, err)
	}

	members := make([]string, 0, len(resp.Joined))
	for userID := range resp.Joined {
		members = append(members, userID.String())
	}
	sort.Strings(members)
	return &distribution.Distribution{Expression: expr, Members: members}, nil
}

// SetDisplayName updates the bot's Matrix profile name.
func (c *Client) SetDisplayName(ctx context.Context, name string) error {
	if err := c.client.SetDisplayName(ctx, name); err != nil {
		return fmt.Errorf("failed to set display name: %w", err)
	}
	return nil
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	if c.config.State == nil && time.UnixMilli(evt.Timestamp).Before(c.startedAt) {
		return
	}
	msg, ok := toIncoming(evt)
	if !ok || c.handlers.OnMessage == nil {
		return
	}
	c.handlers.OnMessage(ctx, msg)
}

func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != c.config.UserID {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if c.handlers.OnTrustChange == nil {
		return
	}

	roomID := evt.RoomID
	c.handlers.OnTrustChange(ctx, message.TrustChange{
		PeerID: evt.Sender.String(),
		Reason: "invite to " + roomID.String(),
		Accept: func(ctx context.Context) error {
			return c.joinRoom(ctx, roomID)
		},
	})
}

// toIncoming maps a room message onto the transport-neutral shape. Routing
// (sender, room, thread) always comes from the Matrix event, so replies and
// membership lookups stay on Matrix. A body that is a JSON exchange document
// only contributes its typed parts and message ID; anything else becomes a
// text/plain part plus a text/html part for formatted messages.
func toIncoming(evt *event.Event) (message.Incoming, bool) {
	content := evt.Content.AsMessage()
	if content == nil {
		return message.Incoming{}, false
	}
	switch content.MsgType {
	case event.MsgText, event.MsgNotice, event.MsgEmote:
	default:
		return message.Incoming{}, false
	}

	msg := message.Incoming{
		ID:                     evt.ID.String(),
		SourceID:               evt.Sender.String(),
		DistributionExpression: evt.RoomID.String(),
		ThreadID:               content.RelatesTo.GetThreadParent().String(),
	}

	if strings.HasPrefix(strings.TrimSpace(content.Body), "[") {
		if ex, err := message.DecodeExchange([]byte(content.Body)); err == nil {
			if ex.ID != "" {
				msg.ID = ex.ID
			}
			msg.Parts = ex.Parts
			return msg, true
		}
	}

	msg.Parts = []message.Part{{Type: message.TypeTextPlain, Value: content.Body}}
	if content.Format == event.FormatHTML && content.FormattedBody != "" {
		msg.Parts = append(msg.Parts, message.Part{Type: message.TypeTextHTML, Value: content.FormattedBody})
	}
	return msg, true
}

// joinRoom attempts to join a room
func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	return retry.Do(ctx, retry.DefaultPolicy, "matrix.join", func(ctx context.Context) error {
		_, err := c.client.JoinRoomByID(ctx, roomID)
		if err == nil {
			return nil
		}
		// M_FORBIDDEN: already a member or not allowed; neither improves on retry.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	})
}
