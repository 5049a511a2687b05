package audit

import (
	"context"
	"testing"

	"github.com/traceprompt/audit-go/internal/encryptor"
)

func TestClient_DecryptBundleRoundTrip(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:0")

	bundle, err := c.encryptor.Seal(context.Background(), encryptor.Plaintext{
		Prompt:   "hi",
		Response: "there",
	}, c.cfg.TenantID)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := c.DecryptBundle(context.Background(), bundle)
	if err != nil {
		t.Fatalf("DecryptBundle: %v", err)
	}
	if got.Prompt != "hi" || got.Response != "there" {
		t.Fatalf("unexpected decrypted plaintext: %+v", got)
	}
}

func TestClient_MetricsRegistryIsNonNil(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:0")
	if c.MetricsRegistry() == nil {
		t.Fatal("expected a non-nil metrics registry")
	}
	if c.MetricsRegistry().Registry() == nil {
		t.Fatal("expected a non-nil underlying prometheus registry")
	}
}

func TestWordCountTokenCounter(t *testing.T) {
	tc := wordCountTokenCounter{}
	if got := tc.Count("  hello   world\t\nfoo"); got != 3 {
		t.Fatalf("expected 3 tokens, got %d", got)
	}
	if got := tc.Count(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty string, got %d", got)
	}
}
