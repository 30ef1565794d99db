package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProbeRecoversWithinRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := HTTPProbe{URL: srv.URL, Attempts: 3, Delay: time.Millisecond}
	require.NoError(t, probe.Probe(context.Background()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPProbeExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	probe := HTTPProbe{URL: srv.URL, Attempts: 3, Delay: time.Millisecond}
	err := probe.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Equal(t, int32(3), hits.Load(), "every attempt in the budget is spent")
}

func TestHTTPProbeAcceptedStatusSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	strict := HTTPProbe{URL: srv.URL, Attempts: 1}
	assert.Error(t, strict.Probe(context.Background()), "401 is outside the default 2xx-3xx set")

	lenient := HTTPProbe{URL: srv.URL, Attempts: 1, Accept: []int{200, 301, 302, 401}}
	assert.NoError(t, lenient.Probe(context.Background()))
}

func TestHTTPProbeRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	probe := HTTPProbe{URL: srv.URL, Attempts: 3, Delay: time.Minute}
	err := probe.Probe(ctx)
	require.Error(t, err)
}
