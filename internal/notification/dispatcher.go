package notification

import (
	"context"
	"time"

	"usalli/internal/domain"
	"usalli/internal/metrics"
	"usalli/internal/txn"
	"usalli/pkg/errors"
	"usalli/pkg/logger"
)

// Sender delivers one event.
type Sender interface {
	Send(ctx context.Context, ev *domain.OutboxEvent) error
}

type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Dispatcher polls the outbox and hands pending events to a Sender,
// recording the outcome of each in the same transaction that claimed it.
type Dispatcher struct {
	store  txn.Store
	sender Sender
	cfg    DispatcherConfig
	logger logger.Logger
}

func NewDispatcher(store txn.Store, sender Sender, cfg DispatcherConfig, log logger.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Dispatcher{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: log,
	}
}

// DispatchOnce processes one batch and returns how many events were
// delivered.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	delivered := 0
	err := d.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		events, err := sc.Outbox().ListPending(ctx, d.cfg.BatchSize)
		if err != nil {
			return errors.Wrap(err, "cannot claim pending events")
		}

		for _, ev := range events {
			if sendErr := d.sender.Send(ctx, ev); sendErr != nil {
				metrics.OutboxDispatched.WithLabelValues(metrics.ResultFailed).Inc()
				d.logger.Warn("Event delivery failed", map[string]interface{}{
					"event_id":   ev.ID,
					"event_type": ev.EventType,
					"error":      sendErr.Error(),
				})
				if err := sc.Outbox().MarkFailed(ctx, ev.ID, sendErr.Error()); err != nil {
					return err
				}
				continue
			}

			if err := sc.Outbox().MarkDispatched(ctx, ev.ID, time.Now().UTC()); err != nil {
				return err
			}
			metrics.OutboxDispatched.WithLabelValues(metrics.ResultDelivered).Inc()
			delivered++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return delivered, nil
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Outbox dispatcher started", map[string]interface{}{
		"poll_interval": d.cfg.PollInterval.String(),
		"batch_size":    d.cfg.BatchSize,
	})

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped", nil)
			return
		case <-ticker.C:
			n, err := d.DispatchOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logger.Error("Outbox dispatch failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			if n > 0 {
				d.logger.Debug("Outbox events dispatched", map[string]interface{}{
					"count": n,
				})
			}
		}
	}
}
