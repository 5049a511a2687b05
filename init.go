// Copyright 2025 Traceprompt

package audit

import (
	"context"
	"sync"

	"github.com/traceprompt/audit-go/internal/config"
	"github.com/traceprompt/audit-go/internal/encryptor"
	"github.com/traceprompt/audit-go/internal/metrics"
	"github.com/traceprompt/audit-go/internal/record"
)

var (
	defaultOnce   sync.Once
	defaultClient *Client
	defaultErr    error
)

// Init builds the process-wide default Client. It is idempotent: the first
// call's cfg wins, and every subsequent call returns the same Client and
// error without re-running initialization.
func Init(cfg *config.Config) (*Client, error) {
	defaultOnce.Do(func() {
		defaultClient, defaultErr = New(cfg)
	})
	return defaultClient, defaultErr
}

// MetricsRegistry exposes the default Client's metrics registry. Panics if
// Init has not been called; use Client.MetricsRegistry directly when
// managing your own instance.
func MetricsRegistry() *metrics.Registry {
	if defaultClient == nil {
		panic("audit: Init must be called before MetricsRegistry")
	}
	return defaultClient.MetricsRegistry()
}

// DecryptBundle decrypts bundle using the default Client (see Init).
func DecryptBundle(ctx context.Context, bundle record.EncryptedBundle) (encryptor.Plaintext, error) {
	if defaultClient == nil {
		panic("audit: Init must be called before DecryptBundle")
	}
	return defaultClient.DecryptBundle(ctx, bundle)
}

// Shutdown drains and stops the default Client (see Init).
func Shutdown() int {
	if defaultClient == nil {
		panic("audit: Init must be called before Shutdown")
	}
	return defaultClient.Shutdown()
}
