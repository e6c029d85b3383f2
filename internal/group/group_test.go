package group

import (
	"testing"
	"time"

	"github.com/example/stacforge/internal/core/model"
)

func yearItem(id string, year int) model.Item {
	return model.Item{
		ID:       id,
		Datetime: time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestByYear(t *testing.T) {
	items := []model.Item{
		yearItem("a", 2021),
		yearItem("b", 2020),
		yearItem("c", 2021),
		{ID: "nodate"},
	}

	s, err := New("by-year", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := Split(items, s)

	if p.Total() != len(items) {
		t.Fatalf("Total = %d, want %d: every item lands somewhere", p.Total(), len(items))
	}
	if len(p.Keys) != 2 || p.Keys[0] != "2021" || p.Keys[1] != "2020" {
		t.Fatalf("keys = %v, want first-encounter order [2021 2020]", p.Keys)
	}
	if got := p.Groups["2021"]; len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("2021 group = %+v", got)
	}
	if len(p.Ungrouped) != 1 || p.Ungrouped[0].ID != "nodate" {
		t.Fatalf("ungrouped = %+v", p.Ungrouped)
	}
}

func TestByYear_RangeUsesStart(t *testing.T) {
	start := time.Date(2019, 12, 30, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	item := model.Item{ID: "r", Datetime: start, Start: &start, End: &end}

	key, err := (ByYear{}).KeyOf(item)
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	if key != "2019" {
		t.Fatalf("key = %q, want the start year", key)
	}
}

func TestByAttribute(t *testing.T) {
	items := []model.Item{
		{ID: "a", Properties: map[string]any{"tile": "T35"}},
		{ID: "b", Properties: map[string]any{"tile": "T36"}},
		{ID: "c", Properties: map[string]any{"tile": "T35"}},
		{ID: "d", Properties: map[string]any{}},
		{ID: "e", Properties: map[string]any{"tile": ""}},
	}

	s, err := New("by-attribute", "tile")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := Split(items, s)

	if p.Total() != len(items) {
		t.Fatalf("Total = %d, want %d", p.Total(), len(items))
	}
	if len(p.Groups["T35"]) != 2 || len(p.Groups["T36"]) != 1 {
		t.Fatalf("groups = %+v", p.Groups)
	}
	if len(p.Ungrouped) != 2 {
		t.Fatalf("ungrouped = %+v, want the missing and empty attribute items", p.Ungrouped)
	}
}

func TestByAttribute_NumericValues(t *testing.T) {
	s := ByAttribute{Attribute: "epsg"}

	cases := []struct {
		val  any
		want model.GroupKey
	}{
		{32735, "32735"},
		{float64(32735), "32735"},
		{"custom", "custom"},
	}
	for _, tc := range cases {
		key, err := s.KeyOf(model.Item{ID: "x", Properties: map[string]any{"epsg": tc.val}})
		if err != nil {
			t.Fatalf("KeyOf(%v): %v", tc.val, err)
		}
		if key != tc.want {
			t.Fatalf("KeyOf(%v) = %q, want %q", tc.val, key, tc.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	if _, err := New("by-attribute", ""); err == nil {
		t.Fatalf("by-attribute without an attribute should fail")
	}
	if _, err := New("nope", ""); err == nil {
		t.Fatalf("unknown strategy should fail")
	}
}

func TestSplit_DisjointGroups(t *testing.T) {
	items := make([]model.Item, 0, 20)
	for i := 0; i < 20; i++ {
		items = append(items, yearItem(string(rune('a'+i)), 2018+i%4))
	}
	p := Split(items, ByYear{})

	seen := map[string]bool{}
	for _, g := range p.Groups {
		for _, it := range g {
			if seen[it.ID] {
				t.Fatalf("item %s appears in more than one group", it.ID)
			}
			seen[it.ID] = true
		}
	}
	if len(seen) != len(items) {
		t.Fatalf("placed %d items, want %d", len(seen), len(items))
	}
}
