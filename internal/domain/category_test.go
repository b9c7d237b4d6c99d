package domain

import "testing"

func TestParseCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want Category
		ok   bool
	}{
		{"", CategoryAll, true},
		{"  Movies ", CategoryMovies, true},
		{"film", CategoryMovies, true},
		{"tv", CategorySeries, true},
		{"music", CategoryMusics, true},
		{"person", CategoryPeople, true},
		{"weather", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCategory(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseCategory(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCategoryConcrete(t *testing.T) {
	if CategoryAll.Concrete() || !CategoryAll.Valid() {
		t.Fatal("all is valid but not concrete")
	}
	for _, category := range Categories {
		if !category.Concrete() {
			t.Fatalf("%s should be concrete", category)
		}
	}
	if Category("weather").Valid() {
		t.Fatal("unknown category must be invalid")
	}
}
