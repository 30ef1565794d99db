package check

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stackward/stackward/pkg/api"
)

// DefaultTimeout bounds a probe that declares no timeout of its own.
const DefaultTimeout = 30 * time.Second

// Probe is a zero-argument operation returning success or failure. Probes
// must be idempotent and side-effect-free with respect to system state: they
// may read, not mutate. Probes that talk to the network or a subprocess must
// carry their own timeout no longer than the harness timeout.
type Probe func(ctx context.Context) error

// Check is one named probe with a declared criticality.
type Check struct {
	Name     string
	Probe    Probe
	Critical bool
	Timeout  time.Duration
}

// Result records one harness execution.
type Result struct {
	Name     string
	Outcome  api.Outcome
	Duration time.Duration
	Detail   string
}

// Code maps an outcome to the harness-internal code: 0 pass, 2 warn, 1 fail.
// The code distinguishes warning from pass per check; it is never used as a
// process exit code.
func (r Result) Code() int {
	switch r.Outcome {
	case api.OutcomePass:
		return 0
	case api.OutcomeWarn:
		return 2
	default:
		return 1
	}
}

// Harness executes probes under a timeout and classifies the outcome.
// Callers accumulate counts and presentation separately.
type Harness struct{}

// Run races the probe against its deadline. A probe that does not return in
// time is treated exactly like a probe that returned failure; the underlying
// execution may continue briefly in the background but its result is never
// observed. Classification: success is PASS, failure is FAIL when critical
// and WARN when advisory. The harness performs no retries; a probe that
// wants retry owns its own bounded loop.
func (Harness) Run(ctx context.Context, c Check) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- c.Probe(cctx) }()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = cctx.Err()
	}
	elapsed := time.Since(start)

	res := Result{Name: c.Name, Duration: elapsed}
	switch {
	case err == nil:
		res.Outcome = api.OutcomePass
	case c.Critical:
		res.Outcome = api.OutcomeFail
		res.Detail = err.Error()
	default:
		res.Outcome = api.OutcomeWarn
		res.Detail = err.Error()
	}
	log.Debug().Str("check", c.Name).Str("outcome", string(res.Outcome)).Dur("elapsed", elapsed).Msg("check executed")
	return res
}
