package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(2*time.Second, 5, 60*time.Second)
	outcome, err := d.Deliver(context.Background(), srv.URL, Payload{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOk, outcome)
}

func TestDeliver_FailureThenBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(2*time.Second, 2, 60*time.Second)

	for i := 0; i < 2; i++ {
		outcome, err := d.Deliver(context.Background(), srv.URL, Payload{JobID: "job-1"})
		assert.Equal(t, OutcomeFailed, outcome)
		assert.Error(t, err)
	}

	outcome, err := d.Deliver(context.Background(), srv.URL, Payload{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}
