package hermes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func newTestClient(t *testing.T, subject string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewClient(context.Background(), startTestNATS(t), "", subject, logger)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestPublishEntry(t *testing.T) {
	c := newTestClient(t, "")

	received := make(chan []byte, 1)
	if err := c.Subscribe(DefaultEntrySubject, func(_ string, data []byte) { received <- data }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	ts, err := transcript.ParseTimestamp("2025-01-01T10:00:00")
	if err != nil {
		t.Fatal(err)
	}
	rec := transcript.MessageRecord{
		ID:            "42",
		CreatedAt:     ts,
		Query:         "Q",
		Answer:        "raw answer",
		FromAccountID: "u1",
	}
	if err := c.PublishEntry(transcript.ChannelNewMessage, rec, "clean answer"); err != nil {
		t.Fatalf("PublishEntry failed: %v", err)
	}

	select {
	case data := <-received:
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("unmarshal entry: %v", err)
		}
		if e.EntryID == "" {
			t.Error("expected entry id")
		}
		if e.MessageID != "42" || e.User != "u1" || e.Query != "Q" {
			t.Errorf("unexpected entry %+v", e)
		}
		if e.Answer != "clean answer" {
			t.Errorf("Answer = %q, want sanitized text", e.Answer)
		}
		if e.CreatedAt != "2025-01-01 10:00:00" {
			t.Errorf("CreatedAt = %q", e.CreatedAt)
		}
		if e.Channel != transcript.ChannelNewMessage {
			t.Errorf("Channel = %q", e.Channel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for entry")
	}
}

func TestPublishConversation_CustomSubject(t *testing.T) {
	c := newTestClient(t, "team.transcripts")

	received := make(chan string, 1)
	if err := c.Subscribe("team.transcripts.>", func(subject string, _ []byte) { received <- subject }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if err := c.PublishConversation(transcript.ConversationRecord{ID: "c1"}); err != nil {
		t.Fatalf("PublishConversation failed: %v", err)
	}

	select {
	case subject := <-received:
		if subject != "team.transcripts.conversation" {
			t.Errorf("subject = %q", subject)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for conversation event")
	}
}

func TestEntryJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Entry{EntryID: "e", Channel: "new_message", CreatedAt: "t", User: "u", Query: "q", Answer: "a"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"entry_id", "channel", "created_at", "user", "query", "answer", "written_at"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if _, ok := m["message_id"]; ok {
		t.Error("empty message_id should be omitted")
	}
}
