// Package feed ingests newly-migrated tokens from the streaming WebSocket
// feed and materializes them as monitored rows in the token store.
package feed

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/store"
)

const (
	handshakeTimeout = 10 * time.Second
	readIdleTimeout  = 30 * time.Second
	pingInterval     = 15 * time.Second
	writeTimeout     = 5 * time.Second
	reconnectBase    = 1 * time.Second
	reconnectCap     = 30 * time.Second
	reconnectJitter  = 1 * time.Second
)

// Subscriber is the long-lived feed client. It reconnects forever with
// bounded jittered backoff; no feed failure is fatal.
type Subscriber struct {
	url     string
	channel string
	repo    store.TokenRepo
	metrics *metrics.Registry

	dialer    *websocket.Dialer
	pingEvery time.Duration
}

// NewSubscriber creates a subscriber for the migration channel at url.
func NewSubscriber(url, channel string, repo store.TokenRepo, reg *metrics.Registry) *Subscriber {
	return &Subscriber{
		url:     url,
		channel: channel,
		repo:    repo,
		metrics: reg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		pingEvery: pingInterval,
	}
}

// Run connects, subscribes, and consumes frames until ctx is cancelled.
// Every transport failure restarts the connection after
// min(1s*2^(n-1), 30s) + jitter, where n counts attempts since the last
// successful open.
func (s *Subscriber) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runConnection(ctx, &attempt)
		if err != nil && errors.Is(err, context.Canceled) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		delay := backoff(attempt)
		log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("feed connection lost, reconnecting")
		if s.metrics != nil {
			s.metrics.FeedReconnects.Inc()
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// backoff computes min(base*2^(n-1), cap) plus up to one second of jitter.
func backoff(attempt int) time.Duration {
	delay := reconnectBase << uint(attempt-1)
	if attempt > 5 || delay > reconnectCap {
		delay = reconnectCap
	}
	return delay + time.Duration(rand.Int63n(int64(reconnectJitter)))
}

// runConnection owns one WebSocket session: dial, subscribe, read until the
// transport fails or ctx is cancelled. A successful open resets the caller's
// attempt counter.
func (s *Subscriber) runConnection(ctx context.Context, attempt *int) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	*attempt = 0
	if s.metrics != nil {
		s.metrics.FeedConnects.Inc()
	}
	log.Info().Str("url", s.url).Str("channel", s.channel).Msg("feed connected")

	if err := s.subscribe(conn); err != nil {
		return err
	}

	// Unblock ReadMessage when ctx is cancelled mid-read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(writeTimeout))
			_ = conn.Close()
		case <-done:
		}
	}()

	// Keepalive: ping on an interval shorter than the read idle timeout; each
	// pong extends the deadline so a quiet but healthy feed stays connected.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})
	go func() {
		ticker := time.NewTicker(s.pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readIdleTimeout)); err != nil {
			return err
		}
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if messageType != websocket.TextMessage {
			if s.metrics != nil {
				s.metrics.FeedFrames.WithLabelValues("non_text").Inc()
			}
			continue
		}
		s.handleFrame(ctx, frame)
	}
}

func (s *Subscriber) subscribe(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(map[string]string{"method": s.channel})
}

// handleFrame upserts the token from one frame. Frames without a
// recognizable address (acks, keepalives) are counted and ignored; store
// errors are logged and the frame dropped, never fatal.
func (s *Subscriber) handleFrame(ctx context.Context, frame []byte) {
	event, ok := Extract(frame)
	if !ok {
		if s.metrics != nil {
			s.metrics.FeedFrames.WithLabelValues("ignored").Inc()
		}
		log.Debug().RawJSON("frame", frame).Msg("feed frame without token address")
		return
	}
	if s.metrics != nil {
		s.metrics.FeedFrames.WithLabelValues("event").Inc()
	}

	token, created, err := s.repo.UpsertMonitored(ctx, event.TokenAddress)
	if err != nil {
		log.Error().Err(err).Str("token", event.TokenAddress).Msg("feed upsert failed")
		return
	}
	if created {
		if s.metrics != nil {
			s.metrics.FeedUpserts.Inc()
		}
		log.Info().Str("token", token.Address).Msg("migrated token ingested")
	}

	if event.PoolAddress != "" {
		if err := s.repo.UpsertPool(ctx, event.TokenAddress, event.PoolAddress, event.Dex, true); err != nil {
			log.Error().Err(err).
				Str("token", event.TokenAddress).
				Str("pool", event.PoolAddress).
				Msg("feed pool upsert failed")
		}
	}
}
