package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

// Sink receives formatted blocks.
type Sink interface {
	Append(block string) error
}

// Relay republishes written entries. It is optional.
type Relay interface {
	PublishEntry(channel string, rec transcript.MessageRecord, answer string) error
	PublishConversation(rec transcript.ConversationRecord) error
}

// Counts is a snapshot of processing outcomes.
type Counts struct {
	EntriesWritten int64 `json:"entries_written"`
	DecodeFailures int64 `json:"decode_failures"`
	WriteFailures  int64 `json:"write_failures"`
	Conversations  int64 `json:"conversations"`
}

// Processor turns notifications into transcript entries: decode, format,
// append, then relay.
type Processor struct {
	formatter transcript.Formatter
	sink      Sink
	relay     Relay
	logger    *slog.Logger

	written        atomic.Int64
	decodeFailures atomic.Int64
	writeFailures  atomic.Int64
	conversations  atomic.Int64
}

// New creates a processor. relay may be nil.
func New(f transcript.Formatter, sink Sink, relay Relay, logger *slog.Logger) *Processor {
	return &Processor{
		formatter: f,
		sink:      sink,
		relay:     relay,
		logger:    logger,
	}
}

// Handle processes one notification. Errors mean the event was dropped.
func (p *Processor) Handle(_ context.Context, evt transcript.ChangeEvent) error {
	switch {
	case transcript.IsMessageChannel(evt.Channel):
		return p.handleMessage(evt)
	case evt.Channel == transcript.ChannelNewConversation:
		return p.handleConversation(evt)
	default:
		return fmt.Errorf("no handler for channel %q", evt.Channel)
	}
}

func (p *Processor) handleMessage(evt transcript.ChangeEvent) error {
	rec, err := transcript.Decode(evt.Payload)
	if err != nil {
		p.decodeFailures.Add(1)
		return fmt.Errorf("decode message: %w", err)
	}
	if rec.Truncated {
		p.logger.Warn("payload was shortened by the notify function", "message_id", rec.ID)
	}

	answer := p.formatter.Sanitizer.Sanitize(rec.Answer)
	if err := p.sink.Append(p.formatter.Format(rec)); err != nil {
		p.writeFailures.Add(1)
		return fmt.Errorf("write entry: %w", err)
	}
	p.written.Add(1)

	if rec.ID == "" {
		p.logger.Warn("entry written for message without id", "channel", evt.Channel)
	} else {
		p.logger.Info("entry written", "channel", evt.Channel, "message_id", rec.ID)
	}

	if p.relay != nil {
		if err := p.relay.PublishEntry(evt.Channel, rec, answer); err != nil {
			p.logger.Warn("failed to relay entry", "message_id", rec.ID, "error", err)
		}
	}
	return nil
}

func (p *Processor) handleConversation(evt transcript.ChangeEvent) error {
	rec, err := transcript.DecodeConversation(evt.Payload)
	if err != nil {
		p.decodeFailures.Add(1)
		return fmt.Errorf("decode conversation: %w", err)
	}
	p.conversations.Add(1)
	p.logger.Info("new conversation detected", "conversation_id", rec.ID, "name", rec.Name)

	if p.relay != nil {
		if err := p.relay.PublishConversation(rec); err != nil {
			p.logger.Warn("failed to relay conversation", "conversation_id", rec.ID, "error", err)
		}
	}
	return nil
}

// Counts returns the current outcome counters.
func (p *Processor) Counts() Counts {
	return Counts{
		EntriesWritten: p.written.Load(),
		DecodeFailures: p.decodeFailures.Load(),
		WriteFailures:  p.writeFailures.Load(),
		Conversations:  p.conversations.Load(),
	}
}
