// Copyright 2025 Traceprompt
//
// Keyring builds the per-call envelope-encryption keyring: either a
// KMS-backed keyring or, for local development, a raw AES keyring seeded
// from an environment variable. NewFromConfig is cheap to call repeatedly —
// callers reconstruct the keyring on every record so that a rotated CMK
// takes effect without a process restart.
package keyring

import "context"

// LocalDevCMK is the sentinel cmk_arn value that activates the local
// keyring instead of a remote KMS.
const LocalDevCMK = "local-dev"

// LocalDevKeyEnv is the environment variable holding the 32-byte hex local
// key-encryption key.
const LocalDevKeyEnv = "LOCAL_DEV_KEK"

// Keyring wraps and unwraps per-record data-encryption keys (DEKs) under a
// customer master key. Implementations must generate a fresh random DEK per
// call to GenerateDataKey.
type Keyring interface {
	// GenerateDataKey returns a fresh 32-byte plaintext DEK and its wrapped
	// (encrypted) form, binding encryptionContext where the backend
	// supports it.
	GenerateDataKey(ctx context.Context, encryptionContext map[string]string) (plaintext, wrapped []byte, err error)

	// UnwrapDataKey recovers the plaintext DEK from its wrapped form.
	UnwrapDataKey(ctx context.Context, wrapped []byte, encryptionContext map[string]string) (plaintext []byte, err error)

	// SuiteID identifies the algorithm suite this keyring produces, for
	// storage in EncryptedBundle.SuiteID.
	SuiteID() int
}

// Config selects and configures a keyring.
type Config struct {
	// CMKArn references a customer master key at a remote KMS, or the
	// sentinel LocalDevCMK to use the local AES keyring.
	CMKArn string
	// Region is the AWS region for the KMS client (KMS variant only).
	Region string
}

// NewFromConfig constructs the keyring indicated by cfg.CMKArn. Reconstruct
// on every call site that needs fresh key material (see package doc).
func NewFromConfig(ctx context.Context, cfg Config) (Keyring, error) {
	if cfg.CMKArn == "" {
		return nil, &ConfigError{Reason: "cmk_arn is required"}
	}
	if cfg.CMKArn == LocalDevCMK {
		return newLocalKeyring()
	}
	return newKMSKeyring(ctx, cfg)
}
