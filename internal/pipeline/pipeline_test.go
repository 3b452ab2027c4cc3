package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casys-ai/mcpserver/internal/queue"
	"github.com/casys-ai/mcpserver/internal/ratelimit"
)

func okHandler(ctx context.Context, ic *InvocationContext) (*HandlerResult, error) {
	return &HandlerResult{Value: "ok"}, nil
}

func TestInvoke_RunsHandlerWhenNoMiddlewares(t *testing.T) {
	r := Build(okHandler)
	res, err := r.Invoke(context.Background(), &InvocationContext{ToolName: "t"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)
}

func TestInvoke_MiddlewareCanShortCircuit(t *testing.T) {
	mw := func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error) {
		return &HandlerResult{Value: "short-circuited"}, nil
	}
	r := Build(okHandler, mw)
	res, err := r.Invoke(context.Background(), &InvocationContext{})
	require.NoError(t, err)
	assert.Equal(t, "short-circuited", res.Value)
}

func TestInvoke_DoubleCallGuard(t *testing.T) {
	buggy := func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error) {
		_, _ = next(ctx, ic)
		return next(ctx, ic)
	}
	r := Build(okHandler, buggy)
	_, err := r.Invoke(context.Background(), &InvocationContext{})
	require.Error(t, err)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindHandlerError, pe.Kind)
}

func TestInvoke_OrderingIsSequential(t *testing.T) {
	var order []string
	record := func(name string) Middleware {
		return func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error) {
			order = append(order, name)
			return next(ctx, ic)
		}
	}
	r := Build(okHandler, record("a"), record("b"), record("c"))
	_, err := r.Invoke(context.Background(), &InvocationContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestBackpressureMiddleware_ReleasesOnHandlerError(t *testing.T) {
	q := queue.New(1, queue.StrategyReject)
	failingHandler := func(ctx context.Context, ic *InvocationContext) (*HandlerResult, error) {
		return nil, errors.New("handler blew up")
	}
	r := Build(failingHandler, BackpressureMiddleware(q))

	_, err := r.Invoke(context.Background(), &InvocationContext{})
	require.Error(t, err)
	assert.Equal(t, 0, q.InFlight(), "queue slot must be released even when the handler errors")

	// A second call must get past backpressure to the handler — proof the
	// slot wasn't leaked.
	_, err = r.Invoke(context.Background(), &InvocationContext{})
	require.EqualError(t, err, "handler blew up") // the handler's error, not a capacity rejection
}

func TestRateLimitMiddleware_RejectsOverBudget(t *testing.T) {
	limiter := ratelimit.New(1, 60_000)
	mw := RateLimitMiddleware(limiter, RateLimitReject, nil)
	r := Build(okHandler, mw)

	_, err := r.Invoke(context.Background(), &InvocationContext{})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), &InvocationContext{})
	require.Error(t, err)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindRateLimited, pe.Kind)
	assert.GreaterOrEqual(t, pe.RetryAfterSeconds, 1)
}
