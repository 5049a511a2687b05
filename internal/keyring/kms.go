// Copyright 2025 Traceprompt
//
// KMS-backed keyring: GenerateDataKey produces a fresh plaintext DEK plus
// its KMS-wrapped ciphertext; UnwrapDataKey recovers the plaintext DEK on
// read. This package only produces and recovers DEKs — the encryptor owns
// sealing the record itself.
package keyring

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// SuiteKMSAES256GCM identifies the KMS-wrapped AES-256-GCM suite.
const SuiteKMSAES256GCM = 1

type kmsKeyring struct {
	client *kms.Client
	cmkArn string
}

func newKMSKeyring(ctx context.Context, cfg Config) (*kmsKeyring, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &ConfigError{Reason: "load AWS config: " + err.Error()}
	}
	return &kmsKeyring{
		client: kms.NewFromConfig(awsCfg),
		cmkArn: cfg.CMKArn,
	}, nil
}

func (k *kmsKeyring) SuiteID() int { return SuiteKMSAES256GCM }

func (k *kmsKeyring) GenerateDataKey(ctx context.Context, encryptionContext map[string]string) ([]byte, []byte, error) {
	out, err := k.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(k.cmkArn),
		KeySpec:           types.DataKeySpecAes256,
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, nil, classifyKmsError("GenerateDataKey", err)
	}
	return out.Plaintext, out.CiphertextBlob, nil
}

func (k *kmsKeyring) UnwrapDataKey(ctx context.Context, wrapped []byte, encryptionContext map[string]string) ([]byte, error) {
	out, err := k.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    wrapped,
		KeyId:             aws.String(k.cmkArn),
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, classifyKmsError("Decrypt", err)
	}
	return out.Plaintext, nil
}

// classifyKmsError maps an AWS KMS SDK error into a *KmsError: AccessDenied,
// DisabledException, and KMSInvalidStateException are non-retryable,
// everything else (network blips, KMS internal errors, throttling) is
// retryable.
func classifyKmsError(op string, err error) *KmsError {
	var accessDenied *types.AccessDeniedException
	var disabled *types.DisabledException
	var invalidState *types.KMSInvalidStateException
	switch {
	case errors.As(err, &accessDenied):
		return newKmsError(op, err, false)
	case errors.As(err, &disabled):
		return newKmsError(op, err, false)
	case errors.As(err, &invalidState):
		return newKmsError(op, err, false)
	default:
		return newKmsError(op, err, true)
	}
}
