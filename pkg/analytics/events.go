package analytics

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Plan identifiers
const (
	PlanFree = "free"
	PlanPaid = "paid"

	// DefaultPlan is used when a user has no plan on record
	DefaultPlan = PlanFree
)

// Known feature identifiers. The feature set is open; these are the ones the
// sample generator emits.
const (
	FeatureImageGeneration = "image_generation"
	FeatureCodeGeneration  = "code_generation"
	FeatureTextCompletion  = "text_completion"
	FeatureVideoGeneration = "video_generation"
)

// NoFeature is reported as the most used feature when there are no events
const NoFeature = "N/A"

// dateLayout is the calendar-date bucket key format
const dateLayout = "2006-01-02"

// UsageEvent is one recorded use of a feature by a user
type UsageEvent struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Feature   string    `json:"feature"`
	Timestamp time.Time `json:"timestamp"`
	// Quantity is the cost measure: a token count for stored events and
	// elapsed seconds for sample events.
	Quantity     float64                `json:"tokens_used"`
	Success      bool                   `json:"success"`
	InputTokens  int64                  `json:"input_tokens,omitempty"`
	OutputTokens int64                  `json:"output_tokens,omitempty"`
	Cost         float64                `json:"cost,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Date returns the UTC calendar date the event is bucketed under
func (e UsageEvent) Date() string {
	return e.Timestamp.UTC().Format(dateLayout)
}

// Hour returns the UTC hour of day (0-23) the event is bucketed under
func (e UsageEvent) Hour() int {
	return e.Timestamp.UTC().Hour()
}

// User is a registered user and the plan they are on
type User struct {
	ID   string `json:"user_id"`
	Plan string `json:"plan"`
}

// TimeRange bounds an event query. Both ends are inclusive; a zero range
// applies no time filter.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the range applies no filter
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t falls inside the range
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// LastDays returns the trailing window of the given number of days ending at now
func LastDays(now time.Time, days int) TimeRange {
	if days < 0 {
		days = 0
	}
	return TimeRange{
		Start: now.AddDate(0, 0, -days),
		End:   now,
	}
}

// NormalizeFeature lower-cases a feature name and replaces spaces with underscores
func NormalizeFeature(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// FeatureLabel returns the display form of a feature key, e.g. "Image Generation"
func FeatureLabel(feature string) string {
	if feature == NoFeature {
		return feature
	}
	words := strings.Fields(strings.ReplaceAll(feature, "_", " "))
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// LogUsageInput describes one usage event to record
type LogUsageInput struct {
	UserID       string
	Feature      string
	TokensUsed   float64
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Success      *bool
	Metadata     map[string]interface{}

	// Request metadata, stored under Metadata when set
	IPAddress     string
	UserAgent     string
	ClientSDK     string
	ClientVersion string
}

// toEvent converts the input into a UsageEvent stamped with the given time
func (in LogUsageInput) toEvent(id string, now time.Time) UsageEvent {
	success := true
	if in.Success != nil {
		success = *in.Success
	}

	metadata := make(map[string]interface{}, len(in.Metadata)+4)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	setIfPresent(metadata, "ip_address", in.IPAddress)
	setIfPresent(metadata, "user_agent", in.UserAgent)
	setIfPresent(metadata, "client_sdk", in.ClientSDK)
	setIfPresent(metadata, "client_version", in.ClientVersion)
	if len(metadata) == 0 {
		metadata = nil
	}

	return UsageEvent{
		ID:           id,
		UserID:       in.UserID,
		Feature:      in.Feature,
		Timestamp:    now.UTC(),
		Quantity:     in.TokensUsed,
		Success:      success,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		Cost:         in.Cost,
		Metadata:     metadata,
	}
}

func setIfPresent(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}
