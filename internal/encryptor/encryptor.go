// Copyright 2025 Traceprompt
//
// Encryptor envelope-encrypts the {prompt, response} pair under a fresh
// per-record data-encryption key produced by a keyring.Keyring, using
// AES-256-GCM framing: a 12-byte nonce prefix followed by ciphertext and
// a 16-byte tag.
package encryptor

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/traceprompt/audit-go/internal/canonical"
	"github.com/traceprompt/audit-go/internal/keyring"
	"github.com/traceprompt/audit-go/internal/metrics"
	"github.com/traceprompt/audit-go/internal/record"
)

// CryptoError reports a failure to encrypt or decrypt a record. It is
// logged and the record is dropped from the queue.
type CryptoError struct {
	Op    string
	Cause error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("encryptor: %s: %v", e.Op, e.Cause) }
func (e *CryptoError) Unwrap() error { return e.Cause }

// Encryptor seals and opens EncryptedBundle values.
type Encryptor struct {
	keyringCfg keyring.Config
	metrics    *metrics.Registry
}

// New returns an Encryptor that builds a fresh Keyring — supporting KMS
// key rotation without a restart — for every Seal/Open call.
func New(keyringCfg keyring.Config, reg *metrics.Registry) *Encryptor {
	return &Encryptor{keyringCfg: keyringCfg, metrics: reg}
}

// Plaintext is the {prompt, response} pair encrypted as one unit.
type Plaintext struct {
	Prompt   interface{} `json:"prompt"`
	Response interface{} `json:"response"`
}

// Seal canonicalizes plaintext, encrypts it under a fresh DEK wrapped by
// the configured keyring, and returns the resulting bundle. tenantID is
// bound as encryption context ({"org_id": tenantID}).
func (e *Encryptor) Seal(ctx context.Context, plaintext Plaintext, tenantID string) (record.EncryptedBundle, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.EncryptionLatency.Observe(time.Since(start).Seconds())
		}
	}()

	kr, err := keyring.NewFromConfig(ctx, e.keyringCfg)
	if err != nil {
		return record.EncryptedBundle{}, &CryptoError{Op: "build keyring", Cause: err}
	}

	body, err := canonical.Marshal(map[string]interface{}{
		"prompt":   plaintext.Prompt,
		"response": plaintext.Response,
	})
	if err != nil {
		return record.EncryptedBundle{}, &CryptoError{Op: "canonicalize plaintext", Cause: err}
	}

	encCtx := map[string]string{"org_id": tenantID}
	dek, wrappedDek, err := kr.GenerateDataKey(ctx, encCtx)
	if err != nil {
		return record.EncryptedBundle{}, &CryptoError{Op: "generate data key", Cause: err}
	}
	defer zero(dek)

	ciphertext, err := seal(dek, body, encCtx)
	if err != nil {
		return record.EncryptedBundle{}, &CryptoError{Op: "seal body", Cause: err}
	}

	return record.EncryptedBundle{
		Ciphertext:       base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDataKey: base64.StdEncoding.EncodeToString(wrappedDek),
		SuiteID:          kr.SuiteID(),
	}, nil
}

// Open is the inverse of Seal, used for audit tooling. tenantID must
// match the value Seal bound as encryption context.
func (e *Encryptor) Open(ctx context.Context, bundle record.EncryptedBundle, tenantID string) (Plaintext, error) {
	kr, err := keyring.NewFromConfig(ctx, e.keyringCfg)
	if err != nil {
		return Plaintext{}, &CryptoError{Op: "build keyring", Cause: err}
	}

	wrappedDek, err := base64.StdEncoding.DecodeString(bundle.EncryptedDataKey)
	if err != nil {
		return Plaintext{}, &CryptoError{Op: "decode encrypted data key", Cause: err}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(bundle.Ciphertext)
	if err != nil {
		return Plaintext{}, &CryptoError{Op: "decode ciphertext", Cause: err}
	}

	encCtx := map[string]string{"org_id": tenantID}
	dek, err := kr.UnwrapDataKey(ctx, wrappedDek, encCtx)
	if err != nil {
		return Plaintext{}, &CryptoError{Op: "unwrap data key", Cause: err}
	}
	defer zero(dek)

	body, err := open(dek, ciphertext, encCtx)
	if err != nil {
		return Plaintext{}, &CryptoError{Op: "open body", Cause: err}
	}

	var pt Plaintext
	if err := unmarshalCanonical(body, &pt); err != nil {
		return Plaintext{}, &CryptoError{Op: "decode plaintext", Cause: err}
	}
	return pt, nil
}

// seal AES-256-GCM-encrypts body under dek, binding encCtx as AAD. Layout:
// [12-byte nonce][ciphertext+16-byte tag].
func seal(dek, body []byte, encCtx map[string]string) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, body, aad(encCtx)), nil
}

func open(dek, ciphertext []byte, encCtx map[string]string) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, aad(encCtx))
}

// aad serializes the encryption context deterministically so seal and open
// bind the same additional authenticated data.
func aad(encCtx map[string]string) []byte {
	keys := make([]string, 0, len(encCtx))
	for k := range encCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []byte
	for _, k := range keys {
		out = append(out, k+"="+encCtx[k]+";"...)
	}
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// unmarshalCanonical decodes the body produced by canonical.Marshal. Plain
// encoding/json is sufficient here: the canonical form is valid JSON, and
// decoding does not need to preserve key order or number formatting.
func unmarshalCanonical(body []byte, pt *Plaintext) error {
	return json.Unmarshal(body, pt)
}
