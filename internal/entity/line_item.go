package entity

import "math"

// LineItem represents one extracted invoice line for data transfer between layers.
type LineItem struct {
	SKU         string   `json:"sku,omitempty"`
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   float64  `json:"unit_price"`
	LineTotal   *float64 `json:"line_total,omitempty"`
	UOM         string   `json:"uom,omitempty"`

	// SourceLine is the zero-based input line the item was read from.
	// Bookkeeping for the scan guardrail, not part of the wire shape.
	SourceLine int `json:"-"`
}

// Valid reports whether the item may count toward acceptance thresholds.
// Items with non-positive quantity or a non-finite/negative unit price are dropped.
func (li LineItem) Valid() bool {
	if li.Quantity <= 0 {
		return false
	}
	if math.IsNaN(li.UnitPrice) || math.IsInf(li.UnitPrice, 0) || li.UnitPrice < 0 {
		return false
	}
	return true
}

// FilterValid returns only the items passing Valid, preserving order.
func FilterValid(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, li := range items {
		if li.Valid() {
			out = append(out, li)
		}
	}
	return out
}
