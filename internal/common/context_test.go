package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunIDRoundtrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-123")
	assert.Equal(t, "run-123", RunIDFromContext(ctx))
}

func TestRunIDMissing(t *testing.T) {
	assert.Empty(t, RunIDFromContext(context.Background()))
}
