// Package canonical builds and validates invoice.v1, the versioned document
// shape handed to downstream consumers. The pipeline treats the builder and
// validator as injected collaborators, so callers with their own invoice
// schema can swap both out without touching extraction.
package canonical

import (
	"github.com/invopipe/invopipe/internal/entity"
)

// SchemaVersion identifies the canonical shape produced by BuildInvoiceV1.
const SchemaVersion = "invoice.v1"

// BuildInvoiceV1 assembles the canonical invoice document from a draft and
// its line items. Unset draft fields are omitted rather than emitted empty,
// so schema validation decides what a complete invoice must carry.
func BuildInvoiceV1(draft entity.Draft, items []entity.LineItem) map[string]any {
	doc := map[string]any{
		"schema_version": SchemaVersion,
		"line_items":     itemMaps(items),
		"item_count":     len(items),
	}
	putString(doc, "invoice_number", draft.InvoiceNumber)
	putString(doc, "po_number", draft.PONumber)
	putString(doc, "document_date", draft.DocumentDate)
	putString(doc, "vendor_name", draft.VendorName)
	putString(doc, "currency_code", draft.CurrencyCode)
	putNumber(doc, "subtotal", draft.Subtotal)
	putNumber(doc, "tax", draft.Tax)
	putNumber(doc, "total", draft.Total)
	if draft.Total != nil && draft.TotalConfidence > 0 {
		doc["total_confidence"] = draft.TotalConfidence
	}
	return doc
}

func itemMaps(items []entity.LineItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, li := range items {
		m := map[string]any{
			"description": li.Description,
			"quantity":    li.Quantity,
			"unit_price":  li.UnitPrice,
		}
		putString(m, "sku", li.SKU)
		putString(m, "uom", li.UOM)
		putNumber(m, "line_total", li.LineTotal)
		out = append(out, m)
	}
	return out
}

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func putNumber(m map[string]any, key string, val *float64) {
	if val != nil {
		m[key] = *val
	}
}
