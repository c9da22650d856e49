package api

import "github.com/platinummonkey/tally/pkg/analytics"

// BannerResponse is returned by GET /
type BannerResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// LogUsageRequest is the body of POST /api/analytics/usage
type LogUsageRequest struct {
	UserID       string                 `json:"user_id"`
	Feature      string                 `json:"feature"`
	TokensUsed   float64                `json:"tokens_used"`
	InputTokens  int64                  `json:"input_tokens,omitempty"`
	OutputTokens int64                  `json:"output_tokens,omitempty"`
	Cost         float64                `json:"cost,omitempty"`
	Success      *bool                  `json:"success,omitempty"` // defaults to true
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

func (req LogUsageRequest) toInput() analytics.LogUsageInput {
	return analytics.LogUsageInput{
		UserID:       req.UserID,
		Feature:      req.Feature,
		TokensUsed:   req.TokensUsed,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
		Cost:         req.Cost,
		Success:      req.Success,
		Metadata:     req.Metadata,
	}
}
