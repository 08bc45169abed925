package domain

import (
	"sort"
	"strings"
)

const (
	DefaultMaxLevel = MaxPinLevel
	minDerivedPrice = 100
)

// BuildingType describes one purchasable building.
type BuildingType struct {
	Key        string
	Label      string
	BaseIncome int64
	Price      int64
	MaxLevel   int
}

// EffectivePrice returns the configured price or one derived from income.
func (t BuildingType) EffectivePrice() int64 {
	if t.Price > 0 {
		return t.Price
	}
	derived := t.BaseIncome * 100
	if derived < minDerivedPrice {
		return minDerivedPrice
	}
	return derived
}

// EffectiveMaxLevel returns MaxLevel bounded by the accrual range.
func (t BuildingType) EffectiveMaxLevel() int {
	if t.MaxLevel <= 0 || t.MaxLevel > MaxPinLevel {
		return DefaultMaxLevel
	}
	return t.MaxLevel
}

// DisplayLabel returns Label or a title derived from Key.
func (t BuildingType) DisplayLabel() string {
	if t.Label != "" {
		return t.Label
	}
	words := strings.Fields(strings.ReplaceAll(t.Key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Catalog maps building keys to their definitions.
type Catalog map[string]BuildingType

// BaseIncome returns the income for key, zero when unknown.
func (c Catalog) BaseIncome(key string) int64 {
	return c[key].BaseIncome
}

// Sorted returns the entries ordered by key.
func (c Catalog) Sorted() []BuildingType {
	out := make([]BuildingType, 0, len(c))
	for _, t := range c {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ComputeIncome sums per-owner income for one tick. Unowned pins are skipped;
// pins with an unknown type contribute zero. Owners with zero income are
// omitted from the result.
func ComputeIncome(pins []*Pin, catalog Catalog) map[string]int64 {
	perOwner := make(map[string]int64)
	for _, p := range pins {
		owner := NormalizeOwner(p.Owner)
		if owner == "" {
			continue
		}
		income := catalog.BaseIncome(p.Type) * int64(ClampLevel(p.Level))
		if income == 0 {
			continue
		}
		perOwner[owner] += income
	}
	return perOwner
}
