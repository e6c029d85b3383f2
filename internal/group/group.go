// Package group partitions items into disjoint groups, each destined
// for its own sub-collection.
package group

import (
	"fmt"
	"strconv"

	"github.com/example/stacforge/internal/core/model"
)

// Strategy derives the group key of an item.
type Strategy interface {
	KeyOf(item model.Item) (model.GroupKey, error)
}

// Factory builds a strategy from the grouping attribute (empty for
// strategies that do not take one).
type Factory func(attribute string) (Strategy, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

func New(name, attribute string) (Strategy, error) {
	if f, ok := reg[name]; ok {
		return f(attribute)
	}
	return nil, fmt.Errorf("no grouping strategy registered for %q", name)
}

func init() {
	Register("by-year", func(string) (Strategy, error) {
		return ByYear{}, nil
	})
	Register("by-attribute", func(attribute string) (Strategy, error) {
		if attribute == "" {
			return nil, fmt.Errorf("by-attribute grouping needs an attribute name")
		}
		return ByAttribute{Attribute: attribute}, nil
	})
}

// ByYear groups by the calendar year of the item's datetime, using the
// start of a range when one is present.
type ByYear struct{}

func (ByYear) KeyOf(item model.Item) (model.GroupKey, error) {
	if item.Datetime.IsZero() && item.Start == nil {
		return model.UngroupedKey, fmt.Errorf("item %s has no datetime", item.ID)
	}
	return model.GroupKey(strconv.Itoa(item.Year())), nil
}

// ByAttribute groups by a named property of the item.
type ByAttribute struct {
	Attribute string
}

func (s ByAttribute) KeyOf(item model.Item) (model.GroupKey, error) {
	v, ok := item.Properties[s.Attribute]
	if !ok {
		return model.UngroupedKey, fmt.Errorf("item %s has no attribute %q", item.ID, s.Attribute)
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return model.UngroupedKey, fmt.Errorf("item %s attribute %q is empty", item.ID, s.Attribute)
		}
		return model.GroupKey(t), nil
	case int:
		return model.GroupKey(strconv.Itoa(t)), nil
	case float64:
		return model.GroupKey(strconv.FormatFloat(t, 'g', -1, 64)), nil
	default:
		return model.GroupKey(fmt.Sprintf("%v", t)), nil
	}
}

// Partition is a complete, order-preserving split of an item sequence:
// every input item lands either in exactly one group or in Ungrouped.
type Partition struct {
	// Keys lists group keys in first-encounter order.
	Keys   []model.GroupKey
	Groups map[model.GroupKey][]model.Item

	// Ungrouped holds items whose key could not be computed. They are
	// kept, not dropped, so callers can detect and report them.
	Ungrouped []model.Item
}

// Total returns the number of items across all groups and the
// ungrouped bucket; always equal to the input length.
func (p *Partition) Total() int {
	n := len(p.Ungrouped)
	for _, g := range p.Groups {
		n += len(g)
	}
	return n
}

// Split partitions items under the strategy. Group order follows the
// order in which each key is first encountered, keeping output
// deterministic relative to input order.
func Split(items []model.Item, s Strategy) *Partition {
	p := &Partition{Groups: map[model.GroupKey][]model.Item{}}
	for _, item := range items {
		key, err := s.KeyOf(item)
		if err != nil || key == model.UngroupedKey {
			p.Ungrouped = append(p.Ungrouped, item)
			continue
		}
		if _, ok := p.Groups[key]; !ok {
			p.Keys = append(p.Keys, key)
		}
		p.Groups[key] = append(p.Groups[key], item)
	}
	return p
}
