// Copyright 2025 Traceprompt
//
// Package audit is the public surface of the client-side audit-logging
// pipeline: Init/WrapLLM/DecryptBundle/MetricsRegistry/Shutdown. It wires
// the internal canonical/hasher/chain/keyring/encryptor/outbox/ring/batch/
// transport/shutdown packages into one pipeline: load config, construct
// collaborators, start background loops, wait for shutdown.
package audit

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/traceprompt/audit-go/internal/batch"
	"github.com/traceprompt/audit-go/internal/chain"
	"github.com/traceprompt/audit-go/internal/config"
	"github.com/traceprompt/audit-go/internal/encryptor"
	"github.com/traceprompt/audit-go/internal/keyring"
	"github.com/traceprompt/audit-go/internal/metrics"
	"github.com/traceprompt/audit-go/internal/outbox"
	"github.com/traceprompt/audit-go/internal/record"
	"github.com/traceprompt/audit-go/internal/ring"
	"github.com/traceprompt/audit-go/internal/shutdown"
	"github.com/traceprompt/audit-go/internal/transport"
)

// TokenCounter approximates token counts for prompt/response text.
// Embedders with a real tokenizer
// (e.g. a vendor's tiktoken binding) should supply their own; Client falls
// back to a whitespace-based approximation when none is given.
type TokenCounter interface {
	Count(text string) int
}

// Client is one initialized audit pipeline. Create one with New (or the
// package-level Init for a process-wide singleton).
type Client struct {
	cfg          *config.Config
	chain        *chain.Chain
	encryptor    *encryptor.Encryptor
	outbox       *outbox.Outbox
	ring         *ring.Ring
	batcher      *batch.Batcher
	transport    *transport.Transport
	metrics      *metrics.Registry
	coordinator  *shutdown.Coordinator
	tokenCounter TokenCounter
	logger       *log.Logger

	runCtx    context.Context
	runCancel context.CancelFunc

	drainDataLoss bool // set by drain before the coordinator reaches Stopped
}

// New builds and starts a Client from cfg: opens (and replays) the outbox,
// seeds the hash chain from its replayed head, constructs the ring and
// batcher, and starts the periodic flush loop and the signal-driven
// shutdown coordinator. Returns *config.ConfigError if cfg is incomplete.
func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := metrics.New()
	logger := log.New(log.Writer(), "[Audit] ", log.LstdFlags)

	outboxPath := filepath.Join(cfg.DataDir, "queue", "outbox.log")
	ob, head, err := outbox.Open(outboxPath, reg)
	if err != nil {
		return nil, fmt.Errorf("audit: open outbox: %w", err)
	}

	c := chain.New()
	if head != "" {
		c.Seed(head)
	}

	enc := encryptor.New(keyring.Config{CMKArn: cfg.CMKArn, Region: cfg.Region}, reg)

	tr, err := transport.New(transport.Config{
		IngestURL: cfg.IngestURL,
		APIKey:    cfg.APIKey,
		UserAgent: "audit-go/0.1",
	})
	if err != nil {
		ob.Close()
		return nil, err
	}

	rng := ring.New(2*cfg.BatchSize, reg)

	batcher, err := batch.New(batch.Config{
		BatchSize:       cfg.BatchSize,
		FlushIntervalMs: cfg.FlushIntervalMs,
		TenantID:        cfg.TenantID,
	}, rng, ob, tr, reg)
	if err != nil {
		ob.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	batcher.Start(runCtx)

	client := &Client{
		cfg:          cfg,
		chain:        c,
		encryptor:    enc,
		outbox:       ob,
		ring:         rng,
		batcher:      batcher,
		transport:    tr,
		metrics:      reg,
		coordinator:  shutdown.New(logger),
		tokenCounter: wordCountTokenCounter{},
		logger:       logger,
		runCtx:       runCtx,
		runCancel:    cancel,
	}

	go client.coordinator.Run(client.drain)

	return client, nil
}

// SetTokenCounter overrides the default whitespace-based token
// approximation.
func (c *Client) SetTokenCounter(tc TokenCounter) {
	c.tokenCounter = tc
}

// MetricsRegistry exposes the Prometheus registry backing this client so
// an embedding application can mount it behind its own /metrics endpoint.
func (c *Client) MetricsRegistry() *metrics.Registry {
	return c.metrics
}

// DecryptBundle recovers the plaintext {prompt, response} JSON bytes from
// an EncryptedBundle, for audit tooling.
func (c *Client) DecryptBundle(ctx context.Context, bundle record.EncryptedBundle) (encryptor.Plaintext, error) {
	return c.encryptor.Open(ctx, bundle, c.cfg.TenantID)
}

// Shutdown explicitly triggers the drain-and-stop sequence and blocks until
// it completes. It is safe to call even if a process signal already
// triggered shutdown.
func (c *Client) Shutdown() int {
	c.coordinator.TriggerShutdown()
	<-c.coordinator.Done()
	c.runCancel()
	c.batcher.Stop()
	c.outbox.Close()
	if c.coordinator.State() == shutdown.StateStopped && !c.drainDataLoss {
		return 0
	}
	return 1
}

// drain implements the shutdown.DrainFunc contract: fail new appends fast,
// cancel the periodic timer, drain the ring with limited retries, then
// drain the outbox to empty within the remaining deadline.
func (c *Client) drain(ctx context.Context) (dataLoss bool) {
	c.outbox.BeginShutdown()
	c.batcher.Stop()

	if err := c.batcher.FlushWithRetry(ctx, 3); err != nil {
		c.logger.Printf("ring drain did not fully succeed: %v", err)
	}

	if err := c.batcher.DrainToEmpty(ctx, shutdown.DrainDeadline); err != nil {
		c.logger.Printf("outbox drain incomplete: %v", err)
		c.drainDataLoss = true
		return true
	}
	return false
}

// wordCountTokenCounter is a crude stand-in for a real tokenizer: it counts
// whitespace-delimited tokens as an approximation and requires no external
// dependency.
type wordCountTokenCounter struct{}

func (wordCountTokenCounter) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			n++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return n
}
