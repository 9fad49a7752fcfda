package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

// DefaultEntrySubject carries every transcript entry written to disk.
const DefaultEntrySubject = "swarm.scribe.entry"

// Entry is the relayed form of a written transcript block.
type Entry struct {
	EntryID        string    `json:"entry_id"`
	Channel        string    `json:"channel"`
	MessageID      string    `json:"message_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      string    `json:"created_at"`
	User           string    `json:"user"`
	Query          string    `json:"query"`
	Answer         string    `json:"answer"`
	Truncated      bool      `json:"truncated,omitempty"`
	WrittenAt      time.Time `json:"written_at"`
}

// ConversationEvent is relayed when a conversation row is inserted.
type ConversationEvent struct {
	ConversationID string    `json:"conversation_id"`
	Name           string    `json:"name,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

type Client struct {
	conn         *nats.Conn
	subs         []*nats.Subscription
	entrySubject string
	logger       *slog.Logger
}

// NewClient connects to NATS. An empty subject uses DefaultEntrySubject;
// conversations go to the same subject with a ".conversation" suffix.
func NewClient(ctx context.Context, url, token, subject string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("scribe"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if subject == "" {
		subject = DefaultEntrySubject
	}

	return &Client{conn: nc, entrySubject: subject, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// PublishEntry relays a written message entry. answer is the sanitized text.
func (c *Client) PublishEntry(channel string, rec transcript.MessageRecord, answer string) error {
	return c.Publish(c.entrySubject, Entry{
		EntryID:        uuid.New().String(),
		Channel:        channel,
		MessageID:      rec.ID,
		ConversationID: rec.ConversationID,
		CreatedAt:      rec.CreatedAt.String(),
		User:           rec.FromAccountID,
		Query:          rec.Query,
		Answer:         answer,
		Truncated:      rec.Truncated,
		WrittenAt:      time.Now().UTC(),
	})
}

// PublishConversation relays a newly detected conversation.
func (c *Client) PublishConversation(rec transcript.ConversationRecord) error {
	return c.Publish(c.entrySubject+".conversation", ConversationEvent{
		ConversationID: rec.ID,
		Name:           rec.Name,
		DetectedAt:     time.Now().UTC(),
	})
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
