package mongo

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/platinummonkey/tally/pkg/analytics"
)

// Collection names
const (
	colUsageLog = "UsageLog"
	colUser     = "User"
)

// usageDoc is a UsageLog document. Documents written before success was
// recorded decode with a nil Success and count as successful.
type usageDoc struct {
	ID           interface{}            `bson:"_id,omitempty"`
	UserID       string                 `bson:"userId"`
	Feature      string                 `bson:"feature"`
	TokensUsed   float64                `bson:"tokensUsed"`
	InputTokens  int64                  `bson:"inputTokens"`
	OutputTokens int64                  `bson:"outputTokens"`
	Cost         float64                `bson:"cost"`
	Success      *bool                  `bson:"success,omitempty"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty"`
	CreatedAt    time.Time              `bson:"createdAt"`
}

type userDoc struct {
	ID     interface{} `bson:"_id"`
	UserID string      `bson:"userId,omitempty"`
	Plan   string      `bson:"plan"`
}

type planCount struct {
	Plan  string `bson:"_id"`
	Count int64  `bson:"count"`
}

func toUsageDoc(e *analytics.UsageEvent) usageDoc {
	success := e.Success
	doc := usageDoc{
		UserID:       e.UserID,
		Feature:      e.Feature,
		TokensUsed:   e.Quantity,
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
		Cost:         e.Cost,
		Success:      &success,
		Metadata:     e.Metadata,
		CreatedAt:    e.Timestamp.UTC(),
	}
	if e.ID != "" {
		doc.ID = e.ID
	}
	return doc
}

func fromUsageDoc(d *usageDoc) analytics.UsageEvent {
	success := true
	if d.Success != nil {
		success = *d.Success
	}
	return analytics.UsageEvent{
		ID:           docID(d.ID),
		UserID:       d.UserID,
		Feature:      d.Feature,
		Timestamp:    d.CreatedAt.UTC(),
		Quantity:     d.TokensUsed,
		Success:      success,
		InputTokens:  d.InputTokens,
		OutputTokens: d.OutputTokens,
		Cost:         d.Cost,
		Metadata:     d.Metadata,
	}
}

// docID renders an _id of any stored type as a string
func docID(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case bson.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

// normalizePlan lower-cases stored plans so "FREE" and "free" group together
func normalizePlan(plan string) string {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return analytics.DefaultPlan
	}
	return plan
}

// rangeFilter builds the createdAt filter for a time range
func rangeFilter(r analytics.TimeRange) bson.D {
	if r.IsZero() {
		return bson.D{}
	}
	cond := bson.D{}
	if !r.Start.IsZero() {
		cond = append(cond, bson.E{Key: "$gte", Value: r.Start.UTC()})
	}
	if !r.End.IsZero() {
		cond = append(cond, bson.E{Key: "$lte", Value: r.End.UTC()})
	}
	return bson.D{{Key: "createdAt", Value: cond}}
}

func userFilter(userID string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: "userId", Value: userID}},
	}}}
}
