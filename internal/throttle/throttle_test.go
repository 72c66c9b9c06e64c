package throttle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLimiterUsesConfiguredLimitsForTarget(t *testing.T) {
	svc := New(map[string]Limits{"mes-primary": {RequestsPerSecond: 1, Burst: 1}}, Limits{})

	limiter := svc.GetLimiter("mes-primary")
	require.NotNil(t, limiter)
	assert.True(t, limiter.Allow(), "burst of 1 allows the first request")
	assert.False(t, limiter.Allow(), "second immediate request exceeds burst")
}

func TestGetLimiterFallsBackForUnknownTarget(t *testing.T) {
	svc := New(nil, Limits{RequestsPerSecond: 5, Burst: 2})

	a := svc.GetLimiter("unconfigured")
	b := svc.GetLimiter("unconfigured")
	assert.Same(t, a, b, "the limiter for a target is cached across calls")
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	svc := New(map[string]Limits{"slow": {RequestsPerSecond: 0.001, Burst: 1}}, Limits{})
	svc.GetLimiter("slow").Allow() // exhaust the single burst token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Wait(ctx, "slow")
	assert.Error(t, err)
}
