package canonical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invopipe/invopipe/internal/entity"
)

func amt(v float64) *float64 { return &v }

func fullDraft() entity.Draft {
	return entity.Draft{
		InvoiceNumber:   "INV-1001",
		PONumber:        "4520011",
		DocumentDate:    "08/15/2026",
		VendorName:      "NORTHWIND TRADERS",
		CurrencyCode:    "USD",
		Subtotal:        amt(13.00),
		Tax:             amt(1.04),
		Total:           amt(14.04),
		TotalConfidence: 95,
	}
}

func sampleItems() []entity.LineItem {
	return []entity.LineItem{
		{Description: "Widget A", Quantity: 2, UnitPrice: 5, LineTotal: amt(10), SKU: "WID-A", UOM: "EA"},
		{Description: "Widget B", Quantity: 1, UnitPrice: 3, LineTotal: amt(3)},
	}
}

func TestBuildInvoiceV1OmitsUnsetFields(t *testing.T) {
	doc := BuildInvoiceV1(entity.Draft{}, sampleItems())

	assert.Equal(t, SchemaVersion, doc["schema_version"])
	assert.Equal(t, 2, doc["item_count"])
	assert.NotContains(t, doc, "invoice_number")
	assert.NotContains(t, doc, "vendor_name")
	assert.NotContains(t, doc, "subtotal")
	assert.NotContains(t, doc, "total")
	assert.NotContains(t, doc, "total_confidence")

	items, ok := doc["line_items"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "WID-A", items[0]["sku"])
	assert.Equal(t, 10.0, items[0]["line_total"])
	assert.NotContains(t, items[1], "sku")
	assert.NotContains(t, items[1], "uom")
}

func TestBuildInvoiceV1CarriesDraftHeader(t *testing.T) {
	doc := BuildInvoiceV1(fullDraft(), sampleItems())

	assert.Equal(t, "INV-1001", doc["invoice_number"])
	assert.Equal(t, "NORTHWIND TRADERS", doc["vendor_name"])
	assert.Equal(t, "USD", doc["currency_code"])
	assert.Equal(t, 14.04, doc["total"])
	assert.Equal(t, 95, doc["total_confidence"])
}

func TestValidate(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	joined := func(errs []string) string { return strings.Join(errs, "; ") }

	t.Run("accepts a complete invoice", func(t *testing.T) {
		ok, errs := v.Validate(BuildInvoiceV1(fullDraft(), sampleItems()))

		assert.True(t, ok)
		assert.Empty(t, errs)
	})

	t.Run("accepts a minimal invoice", func(t *testing.T) {
		draft := entity.Draft{CurrencyCode: "EUR", Total: amt(3)}

		ok, errs := v.Validate(BuildInvoiceV1(draft, sampleItems()[:1]))

		assert.True(t, ok)
		assert.Empty(t, errs)
	})

	t.Run("rejects a headless draft", func(t *testing.T) {
		ok, errs := v.Validate(BuildInvoiceV1(entity.Draft{}, sampleItems()))

		assert.False(t, ok)
		require.NotEmpty(t, errs)
		assert.Contains(t, joined(errs), "total")
		assert.Contains(t, joined(errs), "currency_code")
	})

	t.Run("rejects empty line items", func(t *testing.T) {
		ok, errs := v.Validate(BuildInvoiceV1(fullDraft(), nil))

		assert.False(t, ok)
		assert.Contains(t, joined(errs), "/line_items")
	})

	t.Run("rejects a zero quantity item", func(t *testing.T) {
		items := sampleItems()
		items[0].Quantity = 0

		ok, errs := v.Validate(BuildInvoiceV1(fullDraft(), items))

		assert.False(t, ok)
		assert.Contains(t, joined(errs), "/line_items/0/quantity")
	})

	t.Run("rejects a lowercase currency code", func(t *testing.T) {
		draft := fullDraft()
		draft.CurrencyCode = "usd"

		ok, errs := v.Validate(BuildInvoiceV1(draft, sampleItems()))

		assert.False(t, ok)
		assert.Contains(t, joined(errs), "/currency_code")
	})

	t.Run("rejects a foreign schema version", func(t *testing.T) {
		doc := BuildInvoiceV1(fullDraft(), sampleItems())
		doc["schema_version"] = "invoice.v2"

		ok, errs := v.Validate(doc)

		assert.False(t, ok)
		assert.Contains(t, joined(errs), "/schema_version")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		doc := BuildInvoiceV1(fullDraft(), sampleItems())
		doc["surprise"] = true

		ok, errs := v.Validate(doc)

		assert.False(t, ok)
		assert.Contains(t, joined(errs), "surprise")
	})

	t.Run("rejects a caller-shaped document missing everything", func(t *testing.T) {
		ok, errs := v.Validate(map[string]any{"schema_version": SchemaVersion})

		assert.False(t, ok)
		assert.NotEmpty(t, errs)
	})
}
