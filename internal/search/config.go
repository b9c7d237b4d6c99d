package search

import (
	"time"

	"connectlist/discoveryservice/internal/domain"
)

// AggregatorConfig holds the scheduling limits for one aggregation call.
type AggregatorConfig struct {
	// MaxConcurrent bounds simultaneous adapter calls in one aggregation.
	MaxConcurrent int
	// AllPerProviderCap is each adapter's contribution when fanning out to all.
	AllPerProviderCap int
	// CategoryCap is the item cap when a single category is selected.
	CategoryCap     int
	MinQueryLength  int
	ProviderTimeout time.Duration
	// AllPlan is the fan-out order for CategoryAll. Merged results follow it.
	AllPlan []domain.Category
}

func DefaultAllPlan() []domain.Category {
	return []domain.Category{
		domain.CategoryMovies,
		domain.CategorySeries,
		domain.CategoryGames,
		domain.CategoryBooks,
		domain.CategoryPeople,
		domain.CategoryPlaces,
		domain.CategoryMusics,
		domain.CategoryVideos,
	}
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		MaxConcurrent:     6,
		AllPerProviderCap: 2,
		CategoryCap:       20,
		MinQueryLength:    3,
		ProviderTimeout:   8 * time.Second,
		AllPlan:           DefaultAllPlan(),
	}
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	defaults := DefaultAggregatorConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaults.MaxConcurrent
	}
	if c.AllPerProviderCap <= 0 {
		c.AllPerProviderCap = defaults.AllPerProviderCap
	}
	if c.CategoryCap <= 0 {
		c.CategoryCap = defaults.CategoryCap
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = defaults.MinQueryLength
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = defaults.ProviderTimeout
	}
	plan := make([]domain.Category, 0, len(c.AllPlan))
	seen := make(map[domain.Category]struct{}, len(c.AllPlan))
	for _, category := range c.AllPlan {
		if !category.Concrete() {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		plan = append(plan, category)
	}
	if len(plan) == 0 {
		plan = defaults.AllPlan
	}
	c.AllPlan = plan
	return c
}
