package entity

import (
	"github.com/invopipe/invopipe/constants"
)

// RawDocument is the caller-owned input to a pipeline run. Exactly one of
// Bytes or Text is set; the pipeline never persists it.
type RawDocument struct {
	Bytes      []byte
	Text       string
	SourceType constants.SourceType
	FileName   string
	Meta       map[string]string
}
