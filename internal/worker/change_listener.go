package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"caixa/internal/amqp"
	"caixa/internal/core"
	"caixa/internal/services"
)

type (
	// Fetcher refreshes one collection from the remote API.
	Fetcher interface {
		FetchAll(ctx context.Context, kind core.Kind) services.Result
	}

	// ChangeConsumer delivers change messages until ctx is done.
	ChangeConsumer interface {
		ConsumeChanges(ctx context.Context, handler func(*amqp.ChangeMessage) error) error
	}
)

// ChangeListener re-fetches a collection whenever another instance reports
// that it changed it.
type ChangeListener struct {
	fetcher Fetcher
	origin  string
}

// NewChangeListener ignores messages published with origin, which are this
// instance's own and already followed by a re-fetch.
func NewChangeListener(fetcher Fetcher, origin string) *ChangeListener {
	return &ChangeListener{fetcher: fetcher, origin: origin}
}

// HandleChangeMessage processes a single change message from AMQP
func (l *ChangeListener) HandleChangeMessage(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg.Origin != "" && msg.Origin == l.origin {
		slog.DebugContext(ctx, "Skipping own change message", "kind", msg.Kind, "op", msg.Op)
		return nil
	}

	slog.InfoContext(ctx, "Processing change message",
		"kind", msg.Kind,
		"op", msg.Op,
		"id", msg.ID,
		"origin", msg.Origin)

	res := l.fetcher.FetchAll(ctx, msg.Kind)
	if res.Err != nil && !errors.Is(res.Err, services.ErrSuperseded) {
		return fmt.Errorf("refetch %s: %w", msg.Kind, res.Err)
	}
	return nil
}

// Run consumes until ctx is done. A cancelled context is a clean stop.
func (l *ChangeListener) Run(ctx context.Context, consumer ChangeConsumer) error {
	err := consumer.ConsumeChanges(ctx, func(msg *amqp.ChangeMessage) error {
		return l.HandleChangeMessage(ctx, msg)
	})
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
