package canonical

// invoiceSchemaV1 returns the invoice.v1 JSON Schema (draft 2020-12 subset)
// as a generic map. An invoice must carry a currency, a total, and at least
// one line item; header fields are optional because many scanned documents
// simply do not print them.
func invoiceSchemaV1() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"sku":         map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string", "minLength": 1},
			"quantity":    map[string]any{"type": "number", "exclusiveMinimum": 0},
			"unit_price":  map[string]any{"type": "number", "minimum": 0},
			"line_total":  map[string]any{"type": "number"},
			"uom":         map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"description", "quantity", "unit_price"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"schema_version":   map[string]any{"const": SchemaVersion},
			"invoice_number":   map[string]any{"type": "string", "minLength": 1},
			"po_number":        map[string]any{"type": "string", "minLength": 1},
			"document_date":    map[string]any{"type": "string", "minLength": 1},
			"vendor_name":      map[string]any{"type": "string", "minLength": 1},
			"currency_code":    map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`},
			"subtotal":         map[string]any{"type": "number", "minimum": 0.0},
			"tax":              map[string]any{"type": "number", "minimum": 0.0},
			"total":            map[string]any{"type": "number", "minimum": 0.0},
			"total_confidence": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			"item_count":       map[string]any{"type": "integer", "minimum": 0},
			"line_items":       map[string]any{"type": "array", "minItems": 1, "items": item},
		},
		"required": []string{"schema_version", "currency_code", "total", "line_items"},
	}
}
