// Copyright 2025 Traceprompt
//
// Batcher composes delivery batches from the ring buffer and the outbox,
// drives the transport, and truncates the outbox on success. A periodic
// timer and opportunistic ring-full notifications both trigger a flush,
// serialized behind a single in-flight guard.
package batch

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/traceprompt/audit-go/internal/metrics"
	"github.com/traceprompt/audit-go/internal/outbox"
	"github.com/traceprompt/audit-go/internal/record"
	"github.com/traceprompt/audit-go/internal/ring"
	"github.com/traceprompt/audit-go/internal/transport"
)

// Config configures a Batcher.
type Config struct {
	BatchSize       int
	FlushIntervalMs int
	TenantID        string
	Logger          *log.Logger
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:       20,
		FlushIntervalMs: 2000,
		Logger:          log.New(log.Writer(), "[Batcher] ", log.LstdFlags),
	}
}

// ingestBody is the wire shape POSTed to /v1/ingest.
type ingestBody struct {
	TenantID string       `json:"tenantId"`
	Records  []ingestLine `json:"records"`
}

type ingestLine struct {
	Payload  *record.Record `json:"payload"`
	LeafHash string         `json:"leafHash"`
}

// Batcher drains the ring and outbox into delivery batches.
type Batcher struct {
	cfg       Config
	ring      *ring.Ring
	outbox    *outbox.Outbox
	transport *transport.Transport
	metrics   *metrics.Registry
	logger    *log.Logger

	flushMu sync.Mutex // at most one flush runs at a time

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New builds a Batcher. cfg.BatchSize and cfg.FlushIntervalMs must be
// positive.
func New(cfg Config, r *ring.Ring, ob *outbox.Outbox, tr *transport.Transport, reg *metrics.Registry) (*Batcher, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch: batch_size must be positive")
	}
	if cfg.FlushIntervalMs <= 0 {
		return nil, fmt.Errorf("batch: flush_interval_ms must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Batcher] ", log.LstdFlags)
	}
	return &Batcher{
		cfg:       cfg,
		ring:      r,
		outbox:    ob,
		transport: tr,
		metrics:   reg,
		logger:    cfg.Logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start launches the periodic flush timer. Call Stop to cancel it.
func (b *Batcher) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *Batcher) run(ctx context.Context) {
	defer close(b.doneCh)
	ticker := time.NewTicker(time.Duration(b.cfg.FlushIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			if err := b.FlushOnce(ctx); err != nil {
				b.logger.Printf("periodic flush failed: %v", err)
			}
		}
	}
}

// Stop cancels the periodic timer. It does not drain; callers that need a
// final drain should call DrainToEmpty directly.
func (b *Batcher) Stop() {
	b.once.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

// NotifyRingFull is called by the enqueue path when the ring reached
// batch_size, to opportunistically trigger a flush between timer ticks.
// It is non-blocking.
func (b *Batcher) NotifyRingFull(ctx context.Context) {
	go func() {
		if err := b.FlushOnce(ctx); err != nil {
			b.logger.Printf("opportunistic flush failed: %v", err)
		}
	}()
}

// FlushOnce composes and delivers one batch. If a flush is already in
// progress, this call is a no-op and returns nil immediately.
func (b *Batcher) FlushOnce(ctx context.Context) error {
	if !b.flushMu.TryLock() {
		return nil
	}
	defer b.flushMu.Unlock()
	return b.flushLocked(ctx)
}

func (b *Batcher) flushLocked(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.FlushLatency.Observe(time.Since(start).Seconds())
		}
	}()

	dripped := b.ring.Drip(b.cfg.BatchSize)

	batch := make([]*record.Record, 0, b.cfg.BatchSize)
	batch = append(batch, dripped...)

	diskConsumed := 0
	if len(batch) < b.cfg.BatchSize {
		need := b.cfg.BatchSize - len(batch)
		fromDisk, err := b.outbox.StreamHead(need)
		if err != nil {
			return fmt.Errorf("batch: read outbox head: %w", err)
		}
		batch = append(batch, fromDisk...)
		diskConsumed = len(fromDisk)
	}

	if len(batch) == 0 {
		return nil
	}

	body := ingestBody{TenantID: b.cfg.TenantID, Records: make([]ingestLine, len(batch))}
	for i, rec := range batch {
		body.Records[i] = ingestLine{Payload: rec, LeafHash: rec.LeafHash}
	}

	err := b.transport.Post(ctx, "/v1/ingest", body, map[string]string{
		"Idempotency-Key": batch[0].LeafHash,
	})
	if err != nil {
		// Restore ring-sourced items; disk-sourced ones are untouched, they
		// remain at the head of the outbox.
		b.ring.Restore(dripped)
		if b.metrics != nil {
			b.metrics.FlushFailures.Inc()
		}
		return fmt.Errorf("batch: post ingest batch: %w", err)
	}

	if diskConsumed > 0 {
		if err := b.outbox.TruncatePrefix(diskConsumed); err != nil {
			return fmt.Errorf("batch: truncate delivered prefix: %w", err)
		}
	}
	if b.metrics != nil {
		b.metrics.FlushSuccesses.Inc()
	}
	return nil
}

// retryBackoff returns the retry-wrapper delay for attempt n (1-indexed):
// 500*2^(n-1)ms, capped at 4000ms.
func retryBackoff(attempt int) time.Duration {
	ms := 500 * math.Pow(2, float64(attempt-1))
	if ms > 4000 {
		ms = 4000
	}
	return time.Duration(ms) * time.Millisecond
}

// FlushWithRetry retries FlushOnce up to maxRetries times with
// retryBackoff's delay schedule, stopping early once a flush reports no
// error. It does not distinguish "nothing to flush" from "flushed
// successfully" — both are a nil error from FlushOnce.
func (b *Batcher) FlushWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := b.FlushOnce(ctx); err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff(attempt)):
			}
			continue
		}
		return nil
	}
	return lastErr
}

// DrainToEmpty repeatedly flushes with retry until the outbox is empty or
// deadline elapses.
func (b *Batcher) DrainToEmpty(ctx context.Context, deadline time.Duration) error {
	drainCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		if b.outbox.Size() == 0 && b.ring.Len() == 0 {
			return nil
		}
		if err := b.FlushWithRetry(drainCtx, 5); err != nil {
			if drainCtx.Err() != nil {
				return fmt.Errorf("batch: drain deadline exceeded with records remaining: %w", err)
			}
			b.logger.Printf("drain flush failed, retrying until deadline: %v", err)
			continue
		}
		if drainCtx.Err() != nil {
			return fmt.Errorf("batch: drain deadline exceeded")
		}
	}
}
