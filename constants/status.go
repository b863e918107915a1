package constants

// ResultStatus is the canonical outcome of a pipeline run.
type ResultStatus string

// Stable values (store these exact strings in DB and result JSON).
const (
	StatusCanonicalValid ResultStatus = "canonical_valid" // parsed and schema-validated
	StatusExtractedOnly  ResultStatus = "extracted_only"  // items extracted, canonical missing or invalid
	StatusNoItems        ResultStatus = "no_items"        // clean run, nothing extracted
	StatusParseError     ResultStatus = "parse_error"     // terminal failure
)

// ExtractionMethod names how text was obtained from the input.
type ExtractionMethod string

const (
	MethodPDFText   ExtractionMethod = "pdf-text"   // text layer read directly
	MethodPDFOCR    ExtractionMethod = "pdf-ocr"    // rasterized then OCR'd
	MethodImageOCR  ExtractionMethod = "image-ocr"  // image OCR'd
	MethodTextInput ExtractionMethod = "text-input" // caller supplied raw text
)
