package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumbahub/rentals/internal/billing"
	"github.com/nyumbahub/rentals/internal/config"
	"github.com/nyumbahub/rentals/internal/reconcile"
	"github.com/nyumbahub/rentals/pkg/middleware"
)

type recordingGenerator struct {
	dates []time.Time
	opts  []billing.Options
}

func (g *recordingGenerator) Run(ctx context.Context, evaluationDate time.Time, opts billing.Options) (billing.Summary, error) {
	g.dates = append(g.dates, evaluationDate)
	g.opts = append(g.opts, opts)
	return billing.Summary{Period: evaluationDate.Format("2006-01"), DryRun: opts.DryRun, Created: 3}, nil
}

type recordingReconciler struct {
	dates []time.Time
	opts  []reconcile.Options
}

func (r *recordingReconciler) Run(ctx context.Context, evaluationDate time.Time, opts reconcile.Options) (reconcile.Summary, error) {
	r.dates = append(r.dates, evaluationDate)
	r.opts = append(r.opts, opts)
	return reconcile.Summary{Date: evaluationDate.Format("2006-01-02"), DryRun: opts.DryRun, Expired: 1}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newJobs(t *testing.T) (*Jobs, *recordingGenerator, *recordingReconciler) {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Dar_es_Salaam")
	require.NoError(t, err)
	gen, rec := &recordingGenerator{}, &recordingReconciler{}
	jobs := NewJobs(gen, rec, loc, quietLogger())
	// 22:30 UTC is already the next day in Dar es Salaam
	jobs.SetClock(func() time.Time { return time.Date(2026, time.March, 9, 22, 30, 0, 0, time.UTC) })
	return jobs, gen, rec
}

func TestJobs_TodayUsesLocation(t *testing.T) {
	jobs, _, _ := newJobs(t)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), jobs.Today())
}

func TestScheduler_RunsJobsForToday(t *testing.T) {
	jobs, gen, rec := newJobs(t)
	s, err := New(jobs, config.ScheduleConfig{Generate: "0 1 1 * *", Reconcile: "0 6 * * *"}, quietLogger())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s.generate()
	s.reconcile()
	require.Len(t, gen.dates, 1)
	require.Len(t, rec.dates, 1)
	assert.Equal(t, jobs.Today(), gen.dates[0])
	assert.Equal(t, jobs.Today(), rec.dates[0])
	assert.False(t, rec.opts[0].DryRun)
}

func TestScheduler_InvalidExpression(t *testing.T) {
	jobs, _, _ := newJobs(t)
	_, err := New(jobs, config.ScheduleConfig{Generate: "every day"}, quietLogger())
	assert.Error(t, err)

	s, err := New(jobs, config.ScheduleConfig{}, quietLogger())
	require.NoError(t, err)
	assert.Empty(t, s.cron.Entries())
}

func TestScheduler_StartStop(t *testing.T) {
	jobs, _, _ := newJobs(t)
	s, err := New(jobs, config.ScheduleConfig{Reconcile: "0 6 * * *"}, quietLogger())
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}

func serve(h http.Handler, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User-ID", "1")
	req.Header.Set("X-Test-User-Role", role)
	rec := httptest.NewRecorder()
	middleware.TestUserMiddleware(h).ServeHTTP(rec, req)
	return rec
}

func TestHandler_GenerateRent(t *testing.T) {
	jobs, gen, _ := newJobs(t)
	h := NewHandler(jobs).Routes()

	t.Run("explicit month", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/generate-rent", "admin", GenerateRentRequest{Month: 4, Year: 2026, DryRun: true})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"period":"2026-04"`)
		assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), gen.dates[len(gen.dates)-1])
		assert.True(t, gen.opts[len(gen.opts)-1].DryRun)
	})

	t.Run("defaults to current month", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/generate-rent", "admin", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, jobs.Today(), gen.dates[len(gen.dates)-1])
	})

	t.Run("invalid month", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/generate-rent", "admin", GenerateRentRequest{Month: 13, Year: 2026})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("admin only", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/generate-rent", "owner", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandler_Reconcile(t *testing.T) {
	jobs, _, rc := newJobs(t)
	h := NewHandler(jobs).Routes()

	rec := serve(h, http.MethodPost, "/reconcile", "admin", ReconcileRequest{Date: "2026-03-10", DryRun: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"expired":1`)
	require.Len(t, rc.dates, 1)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), rc.dates[0])
	assert.True(t, rc.opts[0].DryRun)

	rec = serve(h, http.MethodPost, "/reconcile", "admin", ReconcileRequest{Date: "10/03/2026"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
