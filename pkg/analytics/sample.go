package analytics

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// SampleConfig controls the synthetic dataset used when no store is configured
type SampleConfig struct {
	Seed      uint64
	FreeUsers int
	PaidUsers int
	Days      int
	// MinDailyEvents and MaxDailyEvents bound the per-day event count [min, max)
	MinDailyEvents int
	MaxDailyEvents int
	MeanDuration   float64
	SuccessRate    float64
	Now            func() time.Time
}

// DefaultSampleConfig returns the demo dataset parameters
func DefaultSampleConfig() SampleConfig {
	return SampleConfig{
		Seed:           42,
		FreeUsers:      822,
		PaidUsers:      423,
		Days:           30,
		MinDailyEvents: 50,
		MaxDailyEvents: 200,
		MeanDuration:   30,
		SuccessRate:    0.95,
		Now:            time.Now,
	}
}

// featureWeight is one entry of the weighted feature draw
type featureWeight struct {
	feature string
	weight  float64
}

var sampleFeatures = []featureWeight{
	{FeatureImageGeneration, 0.4},
	{FeatureCodeGeneration, 0.3},
	{FeatureTextCompletion, 0.2},
	{FeatureVideoGeneration, 0.1},
}

// SampleDataset is a generated set of users and events
type SampleDataset struct {
	Users       []User
	Events      []UsageEvent
	GeneratedAt time.Time
}

// GenerateSampleData builds a deterministic dataset: the same config (seed and
// clock included) always produces the same users and events.
//
// Plans come from a fixed pool of FreeUsers "free" and PaidUsers "paid" labels
// shuffled with the seeded generator, so the plan split is exact for any seed.
func GenerateSampleData(cfg SampleConfig) SampleDataset {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxDailyEvents <= cfg.MinDailyEvents {
		cfg.MaxDailyEvents = cfg.MinDailyEvents + 1
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	now := cfg.Now().UTC()

	total := cfg.FreeUsers + cfg.PaidUsers
	plans := make([]string, 0, total)
	for i := 0; i < cfg.FreeUsers; i++ {
		plans = append(plans, PlanFree)
	}
	for i := 0; i < cfg.PaidUsers; i++ {
		plans = append(plans, PlanPaid)
	}
	rng.Shuffle(len(plans), func(i, j int) {
		plans[i], plans[j] = plans[j], plans[i]
	})

	users := make([]User, total)
	for i := range users {
		users[i] = User{ID: fmt.Sprintf("user_%d", i+1), Plan: plans[i]}
	}

	var events []UsageEvent
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < cfg.Days && total > 0; i++ {
		dayStart := today.AddDate(0, 0, -(cfg.Days - i - 1))
		count := cfg.MinDailyEvents + rng.IntN(cfg.MaxDailyEvents-cfg.MinDailyEvents)

		// Today's events stop at now
		span := 86400
		if i == cfg.Days-1 {
			span = int(now.Sub(today)/time.Second) + 1
		}

		for j := 0; j < count; j++ {
			user := users[rng.IntN(total)]
			feature := pickFeature(rng)
			offset := time.Duration(rng.IntN(span)) * time.Second

			events = append(events, UsageEvent{
				ID:        fmt.Sprintf("sample_%d_%d", i, j),
				UserID:    user.ID,
				Feature:   feature,
				Timestamp: dayStart.Add(offset),
				Quantity:  rng.ExpFloat64() * cfg.MeanDuration,
				Success:   rng.Float64() < cfg.SuccessRate,
			})
		}
	}

	return SampleDataset{
		Users:       users,
		Events:      events,
		GeneratedAt: now,
	}
}

// pickFeature draws a feature by cumulative weight
func pickFeature(rng *rand.Rand) string {
	r := rng.Float64()
	var cumulative float64
	for _, fw := range sampleFeatures {
		cumulative += fw.weight
		if r < cumulative {
			return fw.feature
		}
	}
	return sampleFeatures[len(sampleFeatures)-1].feature
}
