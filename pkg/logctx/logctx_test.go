package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromCtx_PrefersAttachedLogger(t *testing.T) {
	base := zap.NewNop().Sugar()
	attached := zap.NewNop().Sugar().With("k", "v")
	ctx := context.WithValue(context.Background(), KeyLogger, attached)

	require.Same(t, attached, FromCtx(ctx, base))
}

func TestFromCtx_FallsBackToBase(t *testing.T) {
	base := zap.NewNop().Sugar()
	require.Same(t, base, FromCtx(context.Background(), base))
}

func TestTraceID(t *testing.T) {
	ctx := context.WithValue(context.Background(), KeyTraceID, "abc")
	require.Equal(t, "abc", TraceID(ctx))
	require.Equal(t, "", TraceID(context.Background()))
}

func TestDetach_IgnoresCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), KeyTraceID, "t1"))
	cancel()

	d := Detach(ctx)
	require.NoError(t, d.Err())
	require.Equal(t, "t1", TraceID(d))
}
