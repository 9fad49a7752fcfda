package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/listener"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/sink"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

const shutdownTimeout = 5 * time.Second

// runWatch runs the listener until ctx is cancelled.
func runWatch(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("scribe starting", "version", version, "channels", cfg.Channels, "output", cfg.OutputPath)

	// Output file; the only fatal startup step.
	out, err := sink.New(cfg.OutputPath, cfg.Encoding)
	if err != nil {
		return err
	}
	if err := out.Init(transcript.Header); err != nil {
		logger.Error("failed to initialise transcript file", "path", out.Path(), "error", err)
		return fmt.Errorf("initialise output: %w", err)
	}
	logger.Info("transcript file ready", "path", out.Path(), "encoding", cfg.Encoding)

	// NATS/Hermes relay (optional)
	var relay processor.Relay
	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, cfg.RelaySubject, logger)
		if err != nil {
			logger.Warn("relay disabled: failed to connect to NATS", "url", cfg.NatsURL, "error", err)
		} else {
			defer hc.Close()
			relay = hc
			logger.Info("NATS connected", "url", cfg.NatsURL, "subject", cfg.RelaySubject)
		}
	}

	proc := processor.New(transcript.NewFormatter(cfg.IncludeUser), out, relay, logger)

	sessCfg := store.SessionConfig{
		ConnString:      cfg.ConnString(),
		Channels:        cfg.Channels,
		CompletionField: cfg.CompletionField,
		StrictProvision: cfg.StrictProvision,
		SkipProvision:   cfg.SkipProvision,
	}
	open := func(ctx context.Context) (listener.Session, error) {
		sess, err := store.Open(ctx, sessCfg, logger)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	sup := listener.New(listener.Config{
		Channels:         cfg.Channels,
		ReconnectBackoff: cfg.ReconnectBackoff,
		PollTimeout:      cfg.PollTimeout,
	}, open, proc, logger)

	// HTTP API
	if cfg.Port > 0 {
		srv := api.NewServer(cfg.Port, cfg.APIToken, func() api.Status {
			return buildStatus(cfg, sup.Stats(), proc.Counts())
		})
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("HTTP server shutdown", "error", err)
			}
		}()
		logger.Info("status API listening", "port", cfg.Port)
	}

	err = sup.Run(ctx)
	counts := proc.Counts()
	logger.Info("scribe stopped", "entries_written", counts.EntriesWritten, "decode_failures", counts.DecodeFailures)
	return err
}

func buildStatus(cfg config.Config, st listener.Stats, counts processor.Counts) api.Status {
	s := api.Status{
		Agent:           "scribe",
		State:           st.State.String(),
		SessionID:       st.SessionID,
		Channels:        cfg.Channels,
		OutputPath:      cfg.OutputPath,
		Sessions:        st.Sessions,
		ConnectFailures: st.ConnectFailures,
		Reconnects:      st.ConnectionFaults,
		EventsReceived:  st.EventsReceived,
		EventsDropped:   st.HandlerFailures,
		EntriesWritten:  counts.EntriesWritten,
		DecodeFailures:  counts.DecodeFailures,
		WriteFailures:   counts.WriteFailures,
		Conversations:   counts.Conversations,
	}
	if !st.ConnectedSince.IsZero() {
		t := st.ConnectedSince
		s.ConnectedSince = &t
	}
	return s
}
