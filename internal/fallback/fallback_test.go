package fallback

import (
	"reflect"
	"testing"

	"connectlist/discoveryservice/internal/domain"
)

func TestGenerateReturnsExactCount(t *testing.T) {
	for _, category := range domain.Categories {
		for _, n := range []int{1, 4, 15} {
			items := Generate(category, 42, n)
			if len(items) != n {
				t.Fatalf("%s n=%d: got %d items", category, n, len(items))
			}
			seen := make(map[string]struct{}, n)
			for _, item := range items {
				if !item.IsFallback {
					t.Fatalf("%s: item %q not tagged as fallback", category, item.ID)
				}
				if !item.Valid() {
					t.Fatalf("%s: invalid item %#v", category, item)
				}
				if item.Category != category {
					t.Fatalf("expected category %s, got %s", category, item.Category)
				}
				if _, dup := seen[item.ID]; dup {
					t.Fatalf("%s: duplicate id %q", category, item.ID)
				}
				seen[item.ID] = struct{}{}
			}
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	first := Generate(domain.CategoryVideos, 7, 6)
	second := Generate(domain.CategoryVideos, 7, 6)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different output:\n%#v\n%#v", first, second)
	}
}

func TestGenerateVariesWithSeed(t *testing.T) {
	a := Generate(domain.CategoryMusics, 1, 3)
	b := Generate(domain.CategoryMusics, 2, 3)
	if a[0].ID == b[0].ID {
		t.Fatalf("expected seed in ids, got %q for both", a[0].ID)
	}
}

func TestGenerateNonPositiveCount(t *testing.T) {
	if items := Generate(domain.CategoryBooks, 1, 0); len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
	if items := Generate(domain.CategoryBooks, 1, -3); items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestGenerateForAllCategoryStaysTotal(t *testing.T) {
	items := Generate(domain.CategoryAll, 3, 2)
	if len(items) != 2 || items[0].Category != domain.CategoryVideos {
		t.Fatalf("unexpected output %#v", items)
	}
}

func TestEligible(t *testing.T) {
	for _, category := range domain.Categories {
		want := category == domain.CategoryVideos || category == domain.CategoryMusics
		if got := Eligible(category); got != want {
			t.Fatalf("Eligible(%s) = %v, want %v", category, got, want)
		}
	}
}
