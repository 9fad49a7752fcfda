// Package listener runs the reconnecting notification loop.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

const (
	DefaultReconnectBackoff = 5 * time.Second
	DefaultPollTimeout      = 5 * time.Second

	excerptLen = 200
)

// Session is one live subscription. Implementations need not be safe for
// concurrent use; the supervisor drives a session from a single goroutine.
type Session interface {
	ID() string
	// Poll waits at most timeout and returns the notifications received so
	// far. A timeout is not an error.
	Poll(ctx context.Context, timeout time.Duration) ([]transcript.ChangeEvent, error)
	Close(ctx context.Context) error
}

// OpenFunc establishes a fresh session. Every call must create a new
// connection.
type OpenFunc func(ctx context.Context) (Session, error)

// Handler processes one event. A returned error drops that event only.
type Handler interface {
	Handle(ctx context.Context, evt transcript.ChangeEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt transcript.ChangeEvent) error

func (f HandlerFunc) Handle(ctx context.Context, evt transcript.ChangeEvent) error { return f(ctx, evt) }

// Config is fixed for the lifetime of a Supervisor.
type Config struct {
	Channels         []string
	ReconnectBackoff time.Duration
	PollTimeout      time.Duration
	Clock            clock.Clock
}

// Supervisor owns at most one session at a time and replaces it after any
// connection-level failure.
type Supervisor struct {
	cfg      Config
	open     OpenFunc
	handler  Handler
	logger   *slog.Logger
	channels map[string]bool

	mu    sync.Mutex
	stats Stats
}

// New builds a supervisor. Zero durations and a nil clock take defaults.
func New(cfg Config, open OpenFunc, handler Handler, logger *slog.Logger) *Supervisor {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	channels := make(map[string]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels[ch] = true
	}
	return &Supervisor{
		cfg:      cfg,
		open:     open,
		handler:  handler,
		logger:   logger,
		channels: channels,
		stats:    Stats{State: Disconnected},
	}
}

// Run listens until ctx is cancelled. Connection failures never end the
// loop; Run returns nil once cancellation has closed the current session.
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() {
		s.setState(Stopped)
		s.logger.Info("listener stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(Connecting)
		sess, err := s.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.record(func(st *Stats) { st.ConnectFailures++ })
			s.setState(Disconnected)
			s.logger.Error("connect failed", "error", err, "retry_in", s.cfg.ReconnectBackoff.String())
			if !s.backoff(ctx) {
				return nil
			}
			continue
		}

		err = s.listen(ctx, sess)
		if cerr := sess.Close(ctx); cerr != nil {
			s.logger.Warn("session close failed", "session_id", sess.ID(), "error", cerr)
		}
		s.record(func(st *Stats) {
			st.SessionID = ""
			st.ConnectedSince = time.Time{}
		})
		if ctx.Err() != nil {
			return nil
		}

		s.record(func(st *Stats) { st.ConnectionFaults++ })
		s.setState(Disconnected)
		s.logger.Error("connection lost", "session_id", sess.ID(), "error", err, "retry_in", s.cfg.ReconnectBackoff.String())
		if !s.backoff(ctx) {
			return nil
		}
	}
}

// listen polls sess until it fails or ctx is cancelled.
func (s *Supervisor) listen(ctx context.Context, sess Session) error {
	s.setState(Listening)
	s.record(func(st *Stats) {
		st.SessionID = sess.ID()
		st.ConnectedSince = s.cfg.Clock.Now().UTC()
		st.Sessions++
	})
	s.logger.Info("listening for notifications", "session_id", sess.ID())

	for {
		events, err := sess.Poll(ctx, s.cfg.PollTimeout)
		if err != nil {
			return err
		}
		for _, evt := range events {
			s.dispatch(ctx, evt)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, evt transcript.ChangeEvent) {
	s.record(func(st *Stats) { st.EventsReceived++ })
	s.logger.Debug("notification received", "channel", evt.Channel, "payload", excerpt(evt.Payload))

	if !s.channels[evt.Channel] {
		s.record(func(st *Stats) { st.EventsIgnored++ })
		s.logger.Warn("notification on unsubscribed channel ignored", "channel", evt.Channel)
		return
	}

	if err := s.handler.Handle(ctx, evt); err != nil {
		s.record(func(st *Stats) { st.HandlerFailures++ })
		s.logger.Error("event dropped",
			"channel", evt.Channel,
			"payload", excerpt(evt.Payload),
			"error", err,
		)
	}
}

// backoff waits the reconnect interval. It returns false if ctx was
// cancelled first.
func (s *Supervisor) backoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.cfg.Clock.After(s.cfg.ReconnectBackoff):
		return true
	}
}

func excerpt(payload string) string {
	if len(payload) <= excerptLen {
		return payload
	}
	return payload[:excerptLen] + "..."
}
