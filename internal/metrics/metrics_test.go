package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/spigell/job-agent/internal/llm"
)

type flakyBackend struct {
	responses []string
	errs      []error
}

func (f *flakyBackend) Generate(context.Context, llm.Request) (string, error) {
	text, err := f.responses[0], f.errs[0]
	f.responses, f.errs = f.responses[1:], f.errs[1:]
	return text, err
}

func (f *flakyBackend) Provider() string { return "fake" }

func (f *flakyBackend) Model() string { return "fake-1" }

func TestLLMObserverCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	backend := &flakyBackend{
		responses: []string{"", "", "prefix {\"a\": 1} suffix"},
		errs:      []error{&llm.RateLimitError{}, llm.Transient(errors.New("reset")), nil},
	}
	inv := llm.NewInvoker(backend,
		llm.WithSleep(func(context.Context, time.Duration) error { return nil }),
		llm.WithObserver(m.LLMObserver()),
	)

	if _, err := inv.Invoke(context.Background(), llm.Request{Prompt: "x", JSON: true}, llm.Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"rate limited attempts", testutil.ToFloat64(m.llmAttempts.WithLabelValues("fake", "rate_limited")), 1},
		{"transient attempts", testutil.ToFloat64(m.llmAttempts.WithLabelValues("fake", "transient")), 1},
		{"successful attempts", testutil.ToFloat64(m.llmAttempts.WithLabelValues("fake", "success")), 1},
		{"retries", testutil.ToFloat64(m.llmRetries.WithLabelValues("fake")), 2},
		{"invocations", testutil.ToFloat64(m.llmInvocations.WithLabelValues("fake", "success")), 1},
		{"brace scan recoveries", testutil.ToFloat64(m.llmRecoveries.WithLabelValues("fake", "brace_scan")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestLLMObserverCountsFailures(t *testing.T) {
	m := New(prometheus.NewRegistry())

	backend := &flakyBackend{responses: []string{"not json"}, errs: []error{nil}}
	inv := llm.NewInvoker(backend, llm.WithObserver(m.LLMObserver()))

	if _, err := inv.Invoke(context.Background(), llm.Request{Prompt: "x", JSON: true}, llm.Options{}); err == nil {
		t.Fatal("expected invalid response")
	}

	if got := testutil.ToFloat64(m.llmInvocations.WithLabelValues("fake", "invalid_response")); got != 1 {
		t.Fatalf("expected 1 invalid response, got %v", got)
	}
}

func TestStageAndMatchObservations(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStage("analyze", 150*time.Millisecond)
	m.ObserveStage("score", time.Millisecond)
	m.ObserveMatch(75)

	if n := testutil.CollectAndCount(m.stageDuration); n != 2 {
		t.Fatalf("expected 2 stage series, got %d", n)
	}
	if n := testutil.CollectAndCount(m.matchScore); n != 1 {
		t.Fatalf("expected match histogram, got %d", n)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveStage("analyze", time.Second)
	nilMetrics.ObserveMatch(10)
	nilMetrics.LLMObserver().Finished(llm.Event{})
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/v1/download/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/v1/download/a.docx", "/v1/download/b.docx", "/healthz"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/v1/download/{name}", "404")); got != 2 {
		t.Fatalf("expected 2 download requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")); got != 1 {
		t.Fatalf("expected 1 health request, got %v", got)
	}
}
