// Copyright 2025 Traceprompt
//
// Record is the one-LLM-interaction unit that flows through the pipeline:
// a fixed set of known fields plus a free-form static_meta map for
// caller-supplied context.
package record

// ModelVendor enumerates the supported LLM providers.
type ModelVendor string

const (
	VendorOpenAI    ModelVendor = "openai"
	VendorAnthropic ModelVendor = "anthropic"
	VendorGrok      ModelVendor = "grok"
	VendorLocal     ModelVendor = "local"
)

// EncryptedBundle is the envelope-encrypted {prompt, response} payload.
type EncryptedBundle struct {
	Ciphertext       string `json:"ciphertext"`         // base64
	EncryptedDataKey string `json:"encrypted_data_key"` // base64
	SuiteID          int    `json:"suite_id"`
}

// SuiteAES256GCM is the default suite: AES-256-GCM, 12-byte IV, 16-byte tag.
const SuiteAES256GCM = 1

// Record is one captured LLM interaction.
type Record struct {
	ID              string                 `json:"id"`
	TenantID        string                 `json:"tenant_id"`
	ModelVendor     ModelVendor            `json:"model_vendor"`
	ModelName       string                 `json:"model_name"`
	UserID          string                 `json:"user_id,omitempty"`
	TimestampClient string                 `json:"ts_client"` // RFC3339, millisecond precision
	LatencyMs       float64                `json:"latency_ms"`
	PromptTokens    int                    `json:"prompt_tokens"`
	ResponseTokens  int                    `json:"response_tokens"`
	StaticMeta      map[string]interface{} `json:"static_meta,omitempty"`
	Enc             EncryptedBundle        `json:"enc"`
	PrevHash        *string                `json:"prev_hash"`
	LeafHash        string                 `json:"leaf_hash"`
}

// CanonicalFields returns the map of fields hashed to produce LeafHash,
// i.e. every field of Record except LeafHash and PrevHash. The caller is
// expected to let chain.Link populate prev_hash.
func (r *Record) CanonicalFields() map[string]interface{} {
	staticMeta := map[string]interface{}{}
	for k, v := range r.StaticMeta {
		staticMeta[k] = v
	}
	return map[string]interface{}{
		"id":              r.ID,
		"tenant_id":       r.TenantID,
		"model_vendor":    string(r.ModelVendor),
		"model_name":      r.ModelName,
		"user_id":         r.UserID,
		"ts_client":       r.TimestampClient,
		"latency_ms":      r.LatencyMs,
		"prompt_tokens":   r.PromptTokens,
		"response_tokens": r.ResponseTokens,
		"static_meta":     staticMeta,
		"enc": map[string]interface{}{
			"ciphertext":         r.Enc.Ciphertext,
			"encrypted_data_key": r.Enc.EncryptedDataKey,
			"suite_id":           float64(r.Enc.SuiteID),
		},
	}
}
