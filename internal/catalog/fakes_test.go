package catalog

import (
	"context"
	"sync/atomic"

	"connectlist/discoveryservice/internal/domain"
)

type fakeProvider struct {
	name     string
	category domain.Category
	records  []domain.RawRecord
	err      error
	block    bool
	calls    atomic.Int32
	browses  atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: f.name, Label: f.name, Category: f.category, Enabled: true}
}

func (f *fakeProvider) Search(ctx context.Context, _ string, _ int) ([]domain.RawRecord, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.records, f.err
}

func (f *fakeProvider) Browse(ctx context.Context, _ uint64) ([]domain.RawRecord, error) {
	f.browses.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.records, f.err
}

func sampleRecords(ids ...string) []domain.RawRecord {
	out := make([]domain.RawRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RawRecord{ID: id, Title: "title " + id})
	}
	return out
}
