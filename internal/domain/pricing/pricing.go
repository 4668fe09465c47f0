// Package pricing resolves unit prices for product variants.
//
// Resolution is pure table lookup with deliberate fallbacks: an unknown
// family, size, or color never fails hard — the caller's last known price is
// returned instead, so a user mid-selection always sees some price.
package pricing

import "github.com/shopspring/decimal"

// Family identifies a product family with its own pricing rules.
type Family string

const (
	// FamilyTote has color-dependent size pricing: one table for neutral
	// colors (white, black), another for everything else.
	FamilyTote Family = "tote"
	// FamilyVanity has size-dependent pricing only.
	FamilyVanity Family = "vanity"
	// FamilyRingLight has size-dependent pricing only.
	FamilyRingLight Family = "ring-light"
)

// sizePrice is one size→price entry. Entries are kept in slices, not maps:
// when a color is chosen before a size, the first entry in declaration order
// is the deterministic default.
type sizePrice struct {
	size  string
	price decimal.Decimal
}

// familyTable holds the variant price tables for one product family.
type familyTable struct {
	colorSplit bool
	neutral    []sizePrice // colorSplit: neutral colors; otherwise the only table
	colored    []sizePrice
}

// neutralColors are the colors priced from the neutral tote table.
var neutralColors = map[string]struct{}{
	"white": {},
	"black": {},
}

// Engine resolves variant prices from the loaded tables.
type Engine struct {
	tables map[Family]familyTable
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// NewEngine returns an Engine loaded with the catalog's variant price tables.
func NewEngine() *Engine {
	return &Engine{tables: map[Family]familyTable{
		FamilyTote: {
			colorSplit: true,
			neutral: []sizePrice{
				{"8 x 10", d("40")},
				{"10 x 12", d("45")},
				{"12 x 14", d("50")},
			},
			colored: []sizePrice{
				{"8 x 10", d("38")},
				{"10 x 12", d("43")},
				{"12 x 14", d("48")},
			},
		},
		FamilyVanity: {
			neutral: []sizePrice{
				{"small", d("55")},
				{"medium", d("65")},
				{"large", d("75")},
			},
		},
		FamilyRingLight: {
			neutral: []sizePrice{
				{`10"`, d("30")},
				{`12"`, d("36")},
				{`18"`, d("45")},
			},
		},
	}}
}

// PriceFor resolves the unit price for a family/size/color combination.
// Families without a variant table, unknown sizes within a table, and lines
// with no variant chosen at all resolve to fallback — typically the catalog
// base price or the line's previous price. An empty size with a chosen color
// resolves to the table's first entry.
func (e *Engine) PriceFor(family Family, size, color string, fallback decimal.Decimal) decimal.Decimal {
	t, ok := e.tables[family]
	if !ok {
		return fallback
	}
	if size == "" && color == "" {
		return fallback
	}

	entries := t.neutral
	if t.colorSplit && color != "" {
		if _, neutral := neutralColors[color]; !neutral {
			entries = t.colored
		}
	}
	if len(entries) == 0 {
		return fallback
	}

	if size == "" {
		return entries[0].price
	}
	for _, e := range entries {
		if e.size == size {
			return e.price
		}
	}
	return fallback
}

// HasVariantPricing reports whether a family's unit price is derived from
// variant tables rather than the catalog base price.
func (e *Engine) HasVariantPricing(family Family) bool {
	_, ok := e.tables[family]
	return ok
}
