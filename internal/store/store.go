// Package store owns the Postgres side of the watcher: the listening
// session and the trigger provisioning that feeds it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"

	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

const closeTimeout = 5 * time.Second

// SessionConfig describes one listening connection.
type SessionConfig struct {
	ConnString      string
	Channels        []string
	CompletionField string
	StrictProvision bool // treat provisioning failure as a connection failure
	SkipProvision   bool
}

// Session is a single dedicated connection that LISTENs on the configured
// channels. It is not safe for concurrent use.
type Session struct {
	id       uuid.UUID
	conn     *pgx.Conn
	channels []string
	logger   *slog.Logger

	pending []transcript.ChangeEvent
	closed  bool
}

// Open connects, provisions triggers and subscribes. Statements outside an
// explicit transaction take effect immediately, so LISTEN is active as soon
// as Open returns.
func Open(ctx context.Context, cfg SessionConfig, logger *slog.Logger) (*Session, error) {
	connCfg, err := pgx.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, &ConnectionError{Stage: "connect", Err: fmt.Errorf("parse config: %w", err)}
	}

	s := &Session{
		id:       uuid.New(),
		channels: append([]string(nil), cfg.Channels...),
	}
	s.logger = logger.With("session_id", s.id.String())

	connCfg.OnNotification = s.onNotification
	// Poll timeouts only move the socket deadline; the default handler would
	// send a cancel request to the server on every idle poll.
	connCfg.BuildContextWatcherHandler = func(pc *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.DeadlineContextWatcherHandler{Conn: pc.Conn()}
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, &ConnectionError{Stage: "connect", Err: err}
	}
	s.conn = conn

	if !cfg.SkipProvision {
		err := Provision(ctx, conn, ProvisionOptions{Channels: s.channels, CompletionField: cfg.CompletionField})
		if err != nil {
			if cfg.StrictProvision {
				s.Close(ctx)
				return nil, &ConnectionError{Stage: "provision", Err: err}
			}
			s.logger.Error("provisioning failed, listening anyway", "error", err)
		} else {
			s.logger.Info("triggers provisioned", "channels", s.channels)
		}
	}

	for _, ch := range s.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			s.Close(ctx)
			return nil, &ConnectionError{Stage: "listen", Err: fmt.Errorf("listen %s: %w", ch, err)}
		}
	}
	s.logger.Info("listening", "channels", s.channels)
	return s, nil
}

// ID identifies the session in logs and status output.
func (s *Session) ID() string { return s.id.String() }

// Poll waits up to timeout for a notification and returns everything
// received so far, possibly nothing. Only connection faults and
// cancellation of ctx are errors.
func (s *Session) Poll(ctx context.Context, timeout time.Duration) ([]transcript.ChangeEvent, error) {
	if s.closed || s.conn.IsClosed() {
		return nil, &ConnectionError{Stage: "wait", Err: errors.New("connection closed")}
	}

	if len(s.pending) == 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		err := s.conn.PgConn().WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !pgconn.Timeout(err) && !errors.Is(err, context.DeadlineExceeded) {
				return nil, &ConnectionError{Stage: "wait", Err: err}
			}
		}
	}

	events := s.pending
	s.pending = nil
	return events, nil
}

// Close releases the connection. It is safe on a nil or partially opened
// session and on repeated calls.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || s.conn == nil || s.closed {
		return nil
	}
	s.closed = true

	// The caller's ctx may already be cancelled during shutdown.
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := s.conn.Close(closeCtx); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	s.logger.Info("session closed")
	return nil
}

func (s *Session) onNotification(_ *pgconn.PgConn, n *pgconn.Notification) {
	s.pending = append(s.pending, transcript.ChangeEvent{
		Channel:    n.Channel,
		Payload:    n.Payload,
		PID:        n.PID,
		ReceivedAt: time.Now().UTC(),
	})
}

// ProvisionOnce connects, provisions and disconnects.
func ProvisionOnce(ctx context.Context, connString string, opts ProvisionOptions) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return &ConnectionError{Stage: "connect", Err: err}
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return Provision(ctx, conn, opts)
}
