package entity

// Draft is the plugin-produced, not-yet-validated header extraction.
type Draft struct {
	InvoiceNumber string   `json:"invoice_number,omitempty"`
	PONumber      string   `json:"po_number,omitempty"`
	DocumentDate  string   `json:"document_date,omitempty"`
	VendorName    string   `json:"vendor_name,omitempty"`
	CurrencyCode  string   `json:"currency_code,omitempty"`
	Subtotal      *float64 `json:"subtotal,omitempty"`
	Tax           *float64 `json:"tax,omitempty"`
	Total         *float64 `json:"total,omitempty"`
	// TotalConfidence is the 0-100 confidence of the total anchor, when one
	// was adopted by the guardrail or an anchor scan.
	TotalConfidence int `json:"total_confidence,omitempty"`
}
