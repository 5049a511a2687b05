package keyring

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
)

func TestNewFromConfig_RequiresCMKArn(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError for missing cmk_arn, got %v", err)
	}
}

func TestLocalKeyring_RequiresEnvVar(t *testing.T) {
	t.Setenv(LocalDevKeyEnv, "")
	_, err := NewFromConfig(context.Background(), Config{CMKArn: LocalDevCMK})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError for missing %s, got %v", LocalDevKeyEnv, err)
	}
}

func TestLocalKeyring_RejectsWrongLengthKey(t *testing.T) {
	t.Setenv(LocalDevKeyEnv, hex.EncodeToString([]byte("too-short")))
	_, err := NewFromConfig(context.Background(), Config{CMKArn: LocalDevCMK})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError for wrong-length key, got %v", err)
	}
}

func TestLocalKeyring_GenerateAndUnwrapRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate KEK: %v", err)
	}
	t.Setenv(LocalDevKeyEnv, hex.EncodeToString(key))

	kr, err := NewFromConfig(context.Background(), Config{CMKArn: LocalDevCMK})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if kr.SuiteID() != SuiteLocalAESGCM {
		t.Fatalf("expected suite %d, got %d", SuiteLocalAESGCM, kr.SuiteID())
	}

	encCtx := map[string]string{"org_id": "tenant-a"}
	plaintext, wrapped, err := kr.GenerateDataKey(context.Background(), encCtx)
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}
	if len(plaintext) != 32 {
		t.Fatalf("expected 32-byte DEK, got %d bytes", len(plaintext))
	}

	recovered, err := kr.UnwrapDataKey(context.Background(), wrapped, encCtx)
	if err != nil {
		t.Fatalf("UnwrapDataKey: %v", err)
	}
	if string(recovered) != string(plaintext) {
		t.Fatal("recovered DEK does not match the generated plaintext DEK")
	}
}

func TestLocalKeyring_UnwrapFailsUnderMismatchedContext(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate KEK: %v", err)
	}
	t.Setenv(LocalDevKeyEnv, hex.EncodeToString(key))

	kr, err := NewFromConfig(context.Background(), Config{CMKArn: LocalDevCMK})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	_, wrapped, err := kr.GenerateDataKey(context.Background(), map[string]string{"org_id": "tenant-a"})
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}
	if _, err := kr.UnwrapDataKey(context.Background(), wrapped, map[string]string{"org_id": "tenant-b"}); err == nil {
		t.Fatal("expected UnwrapDataKey to fail under a mismatched encryption context")
	}
}

func TestGenerateDataKey_ProducesFreshKeyPerCall(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate KEK: %v", err)
	}
	t.Setenv(LocalDevKeyEnv, hex.EncodeToString(key))

	kr, err := NewFromConfig(context.Background(), Config{CMKArn: LocalDevCMK})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	_, w1, _ := kr.GenerateDataKey(context.Background(), nil)
	_, w2, _ := kr.GenerateDataKey(context.Background(), nil)
	if string(w1) == string(w2) {
		t.Fatal("expected distinct wrapped keys across calls")
	}
}
