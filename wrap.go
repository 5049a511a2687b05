// Copyright 2025 Traceprompt
//
// WrapLLM times the call, canonicalizes and encrypts {prompt, response},
// chain-links and hashes the record, and enqueues it — without ever
// surfacing an internal auditing failure to the wrapped call's caller.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/traceprompt/audit-go/internal/encryptor"
	"github.com/traceprompt/audit-go/internal/record"
)

// CallMeta carries the per-call metadata the wrapper cannot infer from the
// request/response values themselves.
type CallMeta struct {
	ModelVendor record.ModelVendor
	ModelName   string
	UserID      string
}

// WrapLLM wraps fn so that every call is captured as an audit Record. The
// returned function has the same signature as fn: the original result and
// error are returned unchanged, and any failure in the audit path itself is
// logged rather than propagated.
func WrapLLM[Req any, Resp any](c *Client, fn func(ctx context.Context, req Req) (Resp, error), meta CallMeta) func(ctx context.Context, req Req) (Resp, error) {
	return func(ctx context.Context, req Req) (Resp, error) {
		t0 := time.Now()
		resp, err := fn(ctx, req)
		if err != nil {
			return resp, err
		}

		latencyMs := roundTo2Decimals(float64(time.Since(t0).Microseconds()) / 1000.0)
		if auditErr := c.capture(ctx, meta, req, resp, latencyMs); auditErr != nil {
			c.logger.Printf("capture failed, dropping record: %v", auditErr)
		}
		return resp, nil
	}
}

// capture builds, encrypts, chain-links, and enqueues one Record.
func (c *Client) capture(ctx context.Context, meta CallMeta, req, resp interface{}, latencyMs float64) error {
	promptVal, err := toJSONValue(req)
	if err != nil {
		return fmt.Errorf("audit: canonicalize prompt: %w", err)
	}
	responseVal, err := toJSONValue(resp)
	if err != nil {
		return fmt.Errorf("audit: canonicalize response: %w", err)
	}

	bundle, err := c.encryptor.Seal(ctx, encryptor.Plaintext{Prompt: promptVal, Response: responseVal}, c.cfg.TenantID)
	if err != nil {
		return fmt.Errorf("audit: encrypt record: %w", err)
	}

	staticMeta := make(map[string]interface{}, len(c.cfg.StaticMeta))
	for k, v := range c.cfg.StaticMeta {
		staticMeta[k] = v
	}

	rec := &record.Record{
		ID:              uuid.NewString(),
		TenantID:        c.cfg.TenantID,
		ModelVendor:     meta.ModelVendor,
		ModelName:       meta.ModelName,
		UserID:          meta.UserID,
		TimestampClient: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		LatencyMs:       latencyMs,
		PromptTokens:    c.tokenCounter.Count(jsonStringOf(promptVal)),
		ResponseTokens:  c.tokenCounter.Count(jsonStringOf(responseVal)),
		StaticMeta:      staticMeta,
		Enc:             bundle,
	}

	leafHash, prevHash, err := c.chain.Link(rec.CanonicalFields())
	if err != nil {
		return fmt.Errorf("audit: compute leaf hash: %w", err)
	}
	rec.LeafHash = leafHash
	rec.PrevHash = prevHash

	if err := c.outbox.Append(ctx, rec); err != nil {
		return fmt.Errorf("audit: append to outbox: %w", err)
	}
	c.ring.Push(rec)
	if c.ring.Len() >= c.cfg.BatchSize {
		c.batcher.NotifyRingFull(ctx)
	}
	return nil
}

func roundTo2Decimals(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

// toJSONValue converts an arbitrary Go value into the map/slice/primitive
// shape internal/canonical.Marshal understands, via a JSON round-trip.
func toJSONValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonStringOf(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
