package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/platinummonkey/tally/pkg/analytics"
)

func TestUsageDocRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 15, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	event := analytics.UsageEvent{
		ID:           "evt-1",
		UserID:       "u1",
		Feature:      analytics.FeatureCodeGeneration,
		Timestamp:    ts,
		Quantity:     120,
		Success:      false,
		InputTokens:  20,
		OutputTokens: 100,
		Cost:         0.02,
		Metadata:     map[string]interface{}{"model": "large"},
	}

	doc := toUsageDoc(&event)
	assert.Equal(t, "evt-1", doc.ID)
	assert.Equal(t, time.UTC, doc.CreatedAt.Location())
	require.NotNil(t, doc.Success)

	back := fromUsageDoc(&doc)
	assert.Equal(t, event.ID, back.ID)
	assert.True(t, ts.Equal(back.Timestamp))
	assert.False(t, back.Success)
	assert.Equal(t, event.Metadata, back.Metadata)
}

func TestToUsageDoc_NoID(t *testing.T) {
	doc := toUsageDoc(&analytics.UsageEvent{UserID: "u1"})
	assert.Nil(t, doc.ID)
}

func TestFromUsageDoc_MissingSuccess(t *testing.T) {
	oid := bson.NewObjectID()
	e := fromUsageDoc(&usageDoc{ID: oid, UserID: "u1", Feature: "chat"})

	assert.True(t, e.Success)
	assert.Equal(t, oid.Hex(), e.ID)
}

func TestDocID(t *testing.T) {
	assert.Equal(t, "", docID(nil))
	assert.Equal(t, "abc", docID("abc"))
	assert.Equal(t, "42", docID(int32(42)))
}

func TestNormalizePlan(t *testing.T) {
	assert.Equal(t, "free", normalizePlan("FREE"))
	assert.Equal(t, "paid", normalizePlan(" Paid "))
	assert.Equal(t, analytics.DefaultPlan, normalizePlan(""))
}

func TestRangeFilter(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, bson.D{}, rangeFilter(analytics.TimeRange{}))

	f := rangeFilter(analytics.TimeRange{Start: start, End: end})
	require.Len(t, f, 1)
	assert.Equal(t, "createdAt", f[0].Key)
	assert.Equal(t, bson.D{{Key: "$gte", Value: start}, {Key: "$lte", Value: end}}, f[0].Value)

	f = rangeFilter(analytics.TimeRange{Start: start})
	assert.Equal(t, bson.D{{Key: "$gte", Value: start}}, f[0].Value)
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{URI: "mongodb://localhost:27017/other", Database: "custom"}, "custom"},
		{"from uri", Config{URI: "mongodb://localhost:27017/ai_saas"}, "ai_saas"},
		{"default", Config{URI: "mongodb://localhost:27017"}, DefaultDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := databaseName(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := databaseName(Config{URI: "not a uri"})
	assert.Error(t, err)
}
