package check

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stackward/stackward/pkg/api"
)

func TestRunClassification(t *testing.T) {
	h := Harness{}
	ctx := context.Background()

	pass := h.Run(ctx, Check{Name: "ok", Critical: true, Probe: func(context.Context) error { return nil }})
	assert.Equal(t, api.OutcomePass, pass.Outcome)
	assert.Equal(t, 0, pass.Code())
	assert.Empty(t, pass.Detail)

	fail := h.Run(ctx, Check{Name: "bad", Critical: true, Probe: func(context.Context) error { return errors.New("boom") }})
	assert.Equal(t, api.OutcomeFail, fail.Outcome)
	assert.Equal(t, 1, fail.Code())
	assert.Equal(t, "boom", fail.Detail)

	warn := h.Run(ctx, Check{Name: "meh", Critical: false, Probe: func(context.Context) error { return errors.New("meh") }})
	assert.Equal(t, api.OutcomeWarn, warn.Outcome)
	assert.Equal(t, 2, warn.Code())
}

func TestRunTimeoutIsFailure(t *testing.T) {
	h := Harness{}
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	res := h.Run(context.Background(), Check{Name: "slow", Critical: true, Timeout: 20 * time.Millisecond, Probe: slow})
	assert.Equal(t, api.OutcomeFail, res.Outcome)

	// An advisory probe that times out is folded into the same WARN branch
	// as an ordinary failure.
	res = h.Run(context.Background(), Check{Name: "slow", Critical: false, Timeout: 20 * time.Millisecond, Probe: slow})
	assert.Equal(t, api.OutcomeWarn, res.Outcome)
}

func TestRunOrderIndependence(t *testing.T) {
	h := Harness{}
	ctx := context.Background()
	checks := []Check{
		{Name: "a", Critical: true, Probe: func(context.Context) error { return nil }},
		{Name: "b", Critical: true, Probe: func(context.Context) error { return errors.New("x") }},
		{Name: "c", Critical: false, Probe: func(context.Context) error { return errors.New("y") }},
	}
	forward := map[string]api.Outcome{}
	for _, c := range checks {
		forward[c.Name] = h.Run(ctx, c).Outcome
	}
	for i := len(checks) - 1; i >= 0; i-- {
		c := checks[i]
		assert.Equal(t, forward[c.Name], h.Run(ctx, c).Outcome)
	}
}

func TestRegistryUnknownComponent(t *testing.T) {
	r := NewRegistry()
	r.Register(Category{Name: "network"})
	r.Register(Category{Name: "security"})

	_, err := r.Get("netwrok")
	var uerr *UnknownComponentError
	assert.True(t, errors.As(err, &uerr))
	assert.Equal(t, "netwrok", uerr.Name)
	assert.Equal(t, []string{"network", "security"}, uerr.Known)

	got, err := r.Get("security")
	assert.NoError(t, err)
	assert.Equal(t, "security", got.Name)
	assert.Equal(t, []string{"network", "security"}, r.Names())
}
