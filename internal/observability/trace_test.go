package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceIDRoundTrip(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))

	ctx := WithTraceID(context.Background(), "trace-123")
	assert.Equal(t, "trace-123", TraceID(ctx))
	assert.Equal(t, "trace-123", TraceField(ctx).String)

	// Values survive detachment from cancellation.
	assert.Equal(t, "trace-123", TraceID(context.WithoutCancel(ctx)))
}
