package common

import (
	"math/rand/v2"

	"connectlist/discoveryservice/internal/domain"
)

// Topic picks the browse phrase for seed. Consecutive seeds walk the list.
func Topic(topics []string, seed uint64) string {
	if len(topics) == 0 {
		return ""
	}
	return topics[seed%uint64(len(topics))]
}

// ShuffleTruncate returns a seed-ordered copy of records with at most limit
// entries. The same seed always yields the same order.
func ShuffleTruncate(records []domain.RawRecord, seed uint64, limit int) []domain.RawRecord {
	out := make([]domain.RawRecord, len(records))
	copy(out, records)
	rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// BrowsePage maps a seed onto a 1-based page in [1, maxPage].
func BrowsePage(seed uint64, maxPage int) int {
	if maxPage <= 1 {
		return 1
	}
	return int(seed%uint64(maxPage)) + 1
}
