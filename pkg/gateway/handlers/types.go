package handlers

import (
	"time"

	"tollgate-hq/tollgate/pkg/apikey"
)

// KeyResponse is the JSON form of an API key.
type KeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Secret        string     `json:"secret"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
	UsageCount    int64      `json:"usageCount"`
	RemainingUses int64      `json:"remainingUses"`
	ActualUsage   *int64     `json:"actualUsage,omitempty"`
}

func newKeyResponse(k *apikey.APIKey) KeyResponse {
	return KeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		Secret:        k.Secret,
		CreatedAt:     k.CreatedAt,
		LastUsed:      k.LastUsedAt,
		UsageCount:    k.UsageCount,
		RemainingUses: k.RemainingUses(),
	}
}

// RevealResponse carries an unmasked secret.
type RevealResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// NameRequest is the body of create and rename.
type NameRequest struct {
	Name string `json:"name"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ValidateRequest is the body of POST /validate.
type ValidateRequest struct {
	APIKey string `json:"apiKey"`
}

// ValidateResponse reports whether a secret resolves to a key.
type ValidateResponse struct {
	Error string `json:"error,omitempty"`
	Valid bool   `json:"valid"`
}

// SummarizeRequest is the body of the gated action.
type SummarizeRequest struct {
	GitHubURL string `json:"gitHubUrl"`
}

// SummarizeResponse acknowledges an admitted gated request.
type SummarizeResponse struct {
	Message   string `json:"message"`
	GitHubURL string `json:"gitHubUrl"`
	Status    string `json:"status"`
}

// QuotaExceededResponse is the 429 body of the gated action.
type QuotaExceededResponse struct {
	Error         string `json:"error"`
	RemainingUses int64  `json:"remainingUses"`
	UsageCount    int64  `json:"usageCount"`
}
