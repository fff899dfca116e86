package punchclock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/punchclock/internal/attendance"
	"goflare.io/punchclock/internal/kv"
)

var now = time.Date(2025, 10, 28, 9, 30, 0, 0, time.UTC)

// server fakes the attendance service for one employee.
type server struct {
	mu        sync.Mutex
	timelog   []DayRecord
	rejectAll bool
	quoteDown bool
	hits      map[string]int
}

func newServer() *server {
	return &server{hits: make(map[string]int)}
}

func (s *server) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[name]
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	authed := func(name string, h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.hits[name]++
			reject := s.rejectAll
			s.mu.Unlock()
			if reject || r.Header.Get("Authorization") != "Bearer jwt-token" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid token"})
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":  map[string]any{"_id": "65f0", "id": "EMP001", "name": "Asha", "email": "asha@example.com", "role": "employee"},
			"token": map[string]any{"tokens": "jwt-token"},
		})
	})

	mux.HandleFunc("GET /view/{id}", authed("view", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"_id":     "65f0",
			"id":      r.PathValue("id"),
			"name":    "Asha",
			"timelog": s.timelog,
		})
	}))

	mux.HandleFunc("POST /checkin", authed("checkin", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.timelog = append(s.timelog, DayRecord{Date: "28/10/2025", CheckIn: "2025-10-28T09:30:05.000Z"})
		writeJSON(w, http.StatusOK, map[string]string{"message": "Checked in at 09:30 AM"})
	}))

	mux.HandleFunc("POST /checkout", authed("checkout", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.timelog {
			if s.timelog[i].Date == "28/10/2025" {
				s.timelog[i].CheckOut = "2025-10-28T17:30:00.000Z"
				s.timelog[i].TotalHours = "07:59"
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Checked out"})
	}))

	mux.HandleFunc("POST /filterby", authed("filterby", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []DayRecord{{Date: "01/10/2025", TotalHours: "08:00"}}})
	}))

	mux.HandleFunc("GET /getPaySlip/{id}", authed("payslip", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"month": r.URL.Query().Get("month"), "net": 42000})
	}))

	mux.HandleFunc("GET /quote", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits["quote"]++
		down := s.quoteDown
		s.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"Quote": "Begin anywhere.", "Author": "John Cage"})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, srv *server, store kv.Store, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	opts = append([]Option{
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return now }),
		WithLocation(time.UTC),
		WithAPIBaseURL(ts.URL),
		WithQuoteURL(ts.URL + "/quote"),
		WithRetry(2, time.Millisecond, time.Millisecond),
		WithPrefetch(false),
	}, opts...)

	c, err := New(context.Background(), store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func offline() ConnectivityState { return ConnectivityState{Type: "none"} }

func online() ConnectivityState {
	reachable := true
	return ConnectivityState{IsConnected: true, IsInternetReachable: &reachable, Type: "wifi"}
}

func TestLoginCheckInCheckOutLogout(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	store := kv.NewMemoryStore()
	c := newClient(t, srv, store)

	assert.False(t, c.FastAuthState(ctx).Authenticated)
	_, err := c.Today(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)

	user, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)
	assert.Equal(t, "EMP001", user.ID)

	state := c.FastAuthState(ctx)
	assert.True(t, state.Authenticated)
	assert.False(t, state.ShouldVerify)

	today, err := c.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.NotStarted, today.Phase)

	res, err := c.PerformAction(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Checked in at 09:30 AM", res.Message)
	require.NotNil(t, res.Status)
	assert.Equal(t, attendance.CheckedIn, res.Status.Phase)
	assert.Equal(t, "09:30 AM", res.Status.CheckIn)

	res, err = c.PerformAction(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.Completed, res.Status.Phase)
	assert.Equal(t, "07:59", res.Status.Hours)
	assert.False(t, res.Status.ActionEnabled)

	_, err = c.PerformAction(ctx)
	assert.ErrorIs(t, err, ErrDayCompleted)
	assert.Equal(t, "You have already checked in and out today.", UserMessage(err))

	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.FastAuthState(ctx).Authenticated)
	assert.Equal(t, 0, store.Len())
}

func TestLoginRejected(t *testing.T) {
	c := newClient(t, newServer(), kv.NewMemoryStore())

	_, err := c.Login(context.Background(), "asha", "wrong")
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, "Invalid credentials", UserMessage(err))
	assert.False(t, c.FastAuthState(context.Background()).Authenticated)
}

func TestOfflineCheckInIsReplayedWhenOnline(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	c := newClient(t, srv, kv.NewMemoryStore())

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)
	_, err = c.Today(ctx)
	require.NoError(t, err)

	c.SetConnectivity(ctx, offline())
	assert.False(t, c.Online())

	res, err := c.PerformAction(ctx)
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, 1, c.PendingMutations())
	assert.Equal(t, 0, srv.count("checkin"))

	today, err := c.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.NotStarted, today.Phase)

	c.SetConnectivity(ctx, online())
	assert.Equal(t, 0, c.PendingMutations())
	assert.Equal(t, 1, srv.count("checkin"))

	today, err = c.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.CheckedIn, today.Phase)
}

func TestOfflineDoubleTapQueuesOnce(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	c := newClient(t, srv, kv.NewMemoryStore())

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)
	c.SetConnectivity(ctx, offline())

	res, err := c.PerformAction(ctx)
	require.NoError(t, err)
	require.True(t, res.Queued)

	_, err = c.PerformAction(ctx)
	assert.ErrorIs(t, err, ErrActionInFlight)
	assert.Equal(t, 1, c.PendingMutations())

	c.SetConnectivity(ctx, online())
	assert.Equal(t, 1, srv.count("checkin"))
	assert.Equal(t, 0, c.PendingMutations())
}

func TestAbandonedMutationIsReported(t *testing.T) {
	ctx := context.Background()
	srv := newServer()

	var abandoned []Mutation
	c := newClient(t, srv, kv.NewMemoryStore(), WithOnAbandoned(func(m Mutation, err error) {
		abandoned = append(abandoned, m)
	}))

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)
	_, err = c.Today(ctx)
	require.NoError(t, err)

	c.SetConnectivity(ctx, offline())
	_, err = c.PerformAction(ctx)
	require.NoError(t, err)

	srv.mu.Lock()
	srv.rejectAll = true
	srv.mu.Unlock()

	for i := 0; i < 3; i++ {
		c.DrainQueue(ctx)
	}
	assert.Equal(t, 0, c.PendingMutations())
	assert.Equal(t, 3, srv.count("checkin"))
	require.Len(t, abandoned, 1)
	assert.Equal(t, "/checkin", abandoned[0].Endpoint)
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	store := kv.NewMemoryStore()

	first := newClient(t, srv, store)
	_, err := first.Login(ctx, "asha", "secret")
	require.NoError(t, err)
	first.SetConnectivity(ctx, offline())
	_, err = first.PerformAction(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newClient(t, srv, store)
	assert.True(t, second.FastAuthState(ctx).Authenticated)
	assert.Equal(t, 1, second.PendingMutations())

	report := second.DrainQueue(ctx)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, srv.count("checkin"))
}

func TestVerifySessionRejectedLogsOut(t *testing.T) {
	ctx := context.Background()
	srv := newServer()

	expired := make(chan struct{}, 1)
	c := newClient(t, srv, kv.NewMemoryStore(), WithOnSessionExpired(func() { expired <- struct{}{} }))

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)

	srv.mu.Lock()
	srv.rejectAll = true
	srv.mu.Unlock()

	ok := <-c.VerifySession(ctx, c.FastAuthState(ctx))
	assert.False(t, ok)
	<-expired
	assert.False(t, c.FastAuthState(ctx).Authenticated)
}

func TestVerifySessionAccepted(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newServer(), kv.NewMemoryStore())

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)

	assert.True(t, <-c.VerifySession(ctx, c.FastAuthState(ctx)))
	assert.True(t, c.FastAuthState(ctx).Authenticated)
	assert.False(t, <-c.VerifySession(ctx, AuthState{}))
}

func TestRejectedReadLogsOut(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	c := newClient(t, srv, kv.NewMemoryStore())

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)

	srv.mu.Lock()
	srv.rejectAll = true
	srv.mu.Unlock()

	_, err = c.Today(ctx)
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.False(t, c.FastAuthState(ctx).Authenticated)
}

func TestMonthlyTimelogAndPayslipAreCached(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	c := newClient(t, srv, kv.NewMemoryStore())

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		days, err := c.MonthlyTimelog(ctx, 10, 2025)
		require.NoError(t, err)
		assert.Len(t, days, 1)

		payslip, err := c.Payslip(ctx, 10, 2025)
		require.NoError(t, err)
		assert.JSONEq(t, `{"month":"10","net":42000}`, string(payslip))
	}
	assert.Equal(t, 1, srv.count("filterby"))
	assert.Equal(t, 1, srv.count("payslip"))

	_, err = c.PerformAction(ctx)
	require.NoError(t, err)

	_, err = c.MonthlyTimelog(ctx, 10, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.count("filterby"), "actions invalidate every entry of the employee")

	_, err = c.MonthlyTimelog(ctx, 13, 2025)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Please choose a valid month.", UserMessage(err))
}

func TestQuoteOfTheDay(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	c := newClient(t, srv, kv.NewMemoryStore())

	want := Quote{Text: "Begin anywhere.", Author: "John Cage"}
	assert.Equal(t, want, c.QuoteOfTheDay(ctx))
	assert.Equal(t, want, c.QuoteOfTheDay(ctx))
	assert.Equal(t, 1, srv.count("quote"))
}

func TestQuoteFallbackIsNotCached(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	srv.quoteDown = true
	c := newClient(t, srv, kv.NewMemoryStore())

	q := c.QuoteOfTheDay(ctx)
	assert.NotEmpty(t, q.Text)
	c.QuoteOfTheDay(ctx)
	assert.Equal(t, 2, srv.count("quote"))
}

func TestPrefetchWarmsProfile(t *testing.T) {
	ctx := context.Background()
	srv := newServer()
	c := newClient(t, srv, kv.NewMemoryStore(), WithPrefetch(true))

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)
	c.background.Wait()

	assert.Equal(t, 1, srv.count("view"))
	assert.Equal(t, 1, srv.count("quote"))

	// served from the warmed cache
	_, err = c.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.count("view"))
}

func TestMetricsAreRegistered(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := newClient(t, newServer(), kv.NewMemoryStore(), WithRegisterer(reg))

	_, err := c.Login(ctx, "asha", "secret")
	require.NoError(t, err)
	_, err = c.PerformAction(ctx)
	require.NoError(t, err)

	expected := `
# HELP punchclock_attendance_actions_total Check-in and check-out requests accepted by the server.
# TYPE punchclock_attendance_actions_total counter
punchclock_attendance_actions_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "punchclock_attendance_actions_total"))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Your session has expired. Please log in again.", UserMessage(ErrSessionExpired))
	assert.Equal(t, "Your previous request is still being processed.", UserMessage(ErrActionInFlight))
}
