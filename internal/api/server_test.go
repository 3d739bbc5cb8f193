package api

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"riffcity/internal/sim"
)

func TestTriggerFromRequest(t *testing.T) {
	t.Run("body wins over headers", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/v1/jobs/debt/run",
			strings.NewReader(`{"triggeredBy":"ops-console","requestId":"req-1"}`))
		r.Header.Set("X-Triggered-By", "header-source")

		trig := triggerFromRequest(r)
		assert.Equal(t, "ops-console", trig.TriggeredBy)
		assert.Equal(t, "req-1", trig.RequestID)
	})

	t.Run("headers fill gaps", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/v1/jobs/debt/run", nil)
		r.Header.Set("X-Triggered-By", "cron")
		r.Header.Set("X-Request-Id", "req-2")

		trig := triggerFromRequest(r)
		assert.Equal(t, "cron", trig.TriggeredBy)
		assert.Equal(t, "req-2", trig.RequestID)
	})

	t.Run("defaults when nothing provided", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/v1/jobs/debt/run", nil)

		trig := triggerFromRequest(r)
		assert.Equal(t, "api", trig.TriggeredBy)
		assert.NotEmpty(t, trig.RequestID, "a request id is always generated")
	})
}

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{sim.ErrOfferNotFound, 404},
		{sim.ErrUnauthorized, 403},
		{sim.ErrExclusivityConflict, 409},
		{sim.ErrBrandConflict, 409},
		{sim.ErrOfferNotPending, 400},
		{sim.ErrOfferExpired, 400},
		{sim.ErrInvalidInput, 400},
		{assert.AnError, 500},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		writeDomainError(w, tc.err)
		assert.Equal(t, tc.want, w.Code, "error %v", tc.err)
		assert.Contains(t, w.Body.String(), "error")
	}
}
