// Copyright 2025 Traceprompt

package keyring

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
)

// SuiteLocalAESGCM identifies the local, raw-AES key-wrapping suite.
const SuiteLocalAESGCM = 2

const localKeyLength = 32 // AES-256

// localKeyring wraps DEKs directly with a 32-byte key-encryption key (KEK)
// read from the environment, for development and testing. It performs no
// network calls.
type localKeyring struct {
	kek []byte
}

func newLocalKeyring() (*localKeyring, error) {
	hexKey := os.Getenv(LocalDevKeyEnv)
	if hexKey == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("%s is required when cmk_arn is %q", LocalDevKeyEnv, LocalDevCMK)}
	}
	kek, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("%s is not valid hex: %v", LocalDevKeyEnv, err)}
	}
	if len(kek) != localKeyLength {
		return nil, &ConfigError{Reason: fmt.Sprintf("%s must decode to %d bytes, got %d", LocalDevKeyEnv, localKeyLength, len(kek))}
	}
	return &localKeyring{kek: kek}, nil
}

func (l *localKeyring) SuiteID() int { return SuiteLocalAESGCM }

func (l *localKeyring) GenerateDataKey(ctx context.Context, encryptionContext map[string]string) ([]byte, []byte, error) {
	dek := make([]byte, localKeyLength)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, nil, &ConfigError{Reason: fmt.Sprintf("generate DEK: %v", err)}
	}
	wrapped, err := l.seal(dek, encryptionContext)
	if err != nil {
		return nil, nil, err
	}
	return dek, wrapped, nil
}

func (l *localKeyring) UnwrapDataKey(ctx context.Context, wrapped []byte, encryptionContext map[string]string) ([]byte, error) {
	return l.open(wrapped, encryptionContext)
}

// seal AES-256-GCM-wraps plaintext under the KEK, binding encryptionContext
// as additional authenticated data. Layout: [12-byte nonce][ciphertext+tag].
func (l *localKeyring) seal(plaintext []byte, encryptionContext map[string]string) ([]byte, error) {
	block, err := aes.NewCipher(l.kek)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("build AES cipher: %v", err)}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("build GCM: %v", err)}
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("generate nonce: %v", err)}
	}
	return gcm.Seal(nonce, nonce, plaintext, aad(encryptionContext)), nil
}

func (l *localKeyring) open(wrapped []byte, encryptionContext map[string]string) ([]byte, error) {
	block, err := aes.NewCipher(l.kek)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("build AES cipher: %v", err)}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("build GCM: %v", err)}
	}
	if len(wrapped) < gcm.NonceSize() {
		return nil, &ConfigError{Reason: "wrapped key is shorter than the GCM nonce"}
	}
	nonce, ciphertext := wrapped[:gcm.NonceSize()], wrapped[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, aad(encryptionContext))
}

// aad serializes the encryption context deterministically so seal/open
// agree on the additional authenticated data.
func aad(encryptionContext map[string]string) []byte {
	if len(encryptionContext) == 0 {
		return nil
	}
	keys := make([]string, 0, len(encryptionContext))
	for k := range encryptionContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []byte
	for _, k := range keys {
		out = append(out, []byte(k+"="+encryptionContext[k]+";")...)
	}
	return out
}
