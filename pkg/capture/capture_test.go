package capture_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/growthfoundry/leadship/pkg/capture"
)

// =============================================================================
// Test Utilities
// =============================================================================

// testLogger implements capture.Logger for capturing log output in tests.
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func newTestLogger() *testLogger {
	return &testLogger{messages: make([]string, 0)}
}

func (l *testLogger) Debug(msg string, fields ...capture.LogField) { l.log("DEBUG", msg) }
func (l *testLogger) Info(msg string, fields ...capture.LogField)  { l.log("INFO", msg) }
func (l *testLogger) Warn(msg string, fields ...capture.LogField)  { l.log("WARN", msg) }
func (l *testLogger) Error(msg string, fields ...capture.LogField) { l.log("ERROR", msg) }

func (l *testLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("[%s] %s", level, msg))
}

// recordingHandler captures every event for later assertions.
type recordingHandler struct {
	mu          sync.Mutex
	states      []capture.StateChangeEvent
	submissions []capture.SubmissionEvent
	replays     []capture.ReplayEvent
	transitions []capture.ExitIntentEvent
}

func (h *recordingHandler) OnStateChange(e capture.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e)
}

func (h *recordingHandler) OnSubmission(e capture.SubmissionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.submissions = append(h.submissions, e)
}

func (h *recordingHandler) OnReplay(e capture.ReplayEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replays = append(h.replays, e)
}

func (h *recordingHandler) OnExitIntent(e capture.ExitIntentEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, e)
}

func (h *recordingHandler) submissionDispositions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.submissions))
	for _, s := range h.submissions {
		out = append(out, s.Disposition)
	}
	return out
}

func (h *recordingHandler) stateSequence() []capture.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]capture.State, 0, len(h.states))
	for _, s := range h.states {
		out = append(out, s.Current)
	}
	return out
}

// trackingPlugin tracks initialization and shutdown calls for testing.
type trackingPlugin struct {
	name          string
	initOrder     *[]string
	shutdownOrder *[]string
	initError     error
	mu            sync.Mutex
	gotConfig     capture.PluginConfig
	initialized   bool
	shutdown      bool
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg capture.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initError != nil {
		return p.initError
	}
	p.initialized = true
	p.gotConfig = cfg
	if p.initOrder != nil {
		*p.initOrder = append(*p.initOrder, p.name)
	}
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
	if p.shutdownOrder != nil {
		*p.shutdownOrder = append(*p.shutdownOrder, p.name)
	}
	return nil
}

// flakyEndpoint serves the submission endpoint, failing the first
// `failures` requests with HTTP 503.
type flakyEndpoint struct {
	failures int32
	hits     int32
}

func (f *flakyEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.hits, 1)
		if n <= atomic.LoadInt32(&f.failures) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func testConfig(endpoint string) capture.Config {
	return capture.Config{
		EndpointURL: endpoint,
		StoreDriver: capture.DriverMemory,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		// Keep the background loop quiet; tests drive replay via Kick.
		PollInterval: time.Hour,
	}
}

func validLead() capture.Lead {
	return capture.Lead{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "+1 555 0100",
		Message:   "Tell me more about your analytical engines.",
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// =============================================================================
// Construction
// =============================================================================

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*capture.Config)
	}{
		{"missing endpoint", func(c *capture.Config) { c.EndpointURL = "" }},
		{"unknown driver", func(c *capture.Config) { c.StoreDriver = "etcd" }},
		{"fs driver without state dir", func(c *capture.Config) {
			c.StoreDriver = capture.DriverFS
			c.StateDir = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("https://api.example.com/leads")
			tt.mod(&cfg)
			if _, err := capture.New(cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestNewWithFSDriver(t *testing.T) {
	cfg := testConfig("https://api.example.com/leads")
	cfg.StoreDriver = capture.DriverFS
	cfg.StateDir = t.TempDir()

	c, err := capture.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Status(); got != capture.StateStopped {
		t.Fatalf("initial status = %v, want %v", got, capture.StateStopped)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStartStopLifecycle(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	handler := &recordingHandler{}
	c, err := capture.New(testConfig(srv.URL), capture.WithEventHandler(handler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	waitFor(t, 2*time.Second, func() bool {
		return c.Status() == capture.StateRunning
	})

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := c.Status(); got != capture.StateStopped {
		t.Fatalf("status after Stop = %v, want %v", got, capture.StateStopped)
	}
	if err := c.Stop(); err == nil {
		t.Fatal("second Stop should fail")
	}

	want := []capture.State{
		capture.StateStarting,
		capture.StateRunning,
		capture.StateStopping,
		capture.StateStopped,
	}
	got := handler.stateSequence()
	if len(got) != len(want) {
		t.Fatalf("state sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state sequence = %v, want %v", got, want)
		}
	}
}

func TestPluginLifecycleOrder(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	var initOrder, shutdownOrder []string
	p1 := &trackingPlugin{name: "first", initOrder: &initOrder, shutdownOrder: &shutdownOrder}
	p2 := &trackingPlugin{name: "second", initOrder: &initOrder, shutdownOrder: &shutdownOrder}

	c, err := capture.New(testConfig(srv.URL),
		capture.WithPlugin(p1),
		capture.WithPlugin(p2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if len(initOrder) != 2 || initOrder[0] != "first" || initOrder[1] != "second" {
		t.Fatalf("init order = %v", initOrder)
	}
	if len(shutdownOrder) != 2 || shutdownOrder[0] != "second" || shutdownOrder[1] != "first" {
		t.Fatalf("shutdown order = %v (want reverse of init)", shutdownOrder)
	}
	if p1.gotConfig.Kick == nil || p1.gotConfig.PruneDeadLetters == nil || p1.gotConfig.PruneFragments == nil {
		t.Fatal("plugin config is missing runtime hooks")
	}
}

func TestPluginInitFailureCrashes(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	logger := newTestLogger()
	bad := &trackingPlugin{name: "broken", initError: errors.New("no permissions")}
	c, err := capture.New(testConfig(srv.URL),
		capture.WithLogger(logger),
		capture.WithPlugin(bad),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start should surface the plugin error")
	}
	if got := c.Status(); got != capture.StateCrashed {
		t.Fatalf("status = %v, want %v", got, capture.StateCrashed)
	}

	var logged bool
	logger.mu.Lock()
	for _, m := range logger.messages {
		if strings.Contains(m, "plugin initialization failed") {
			logged = true
		}
	}
	logger.mu.Unlock()
	if !logged {
		t.Fatal("plugin failure was not logged")
	}
}

// =============================================================================
// Submission Flow
// =============================================================================

func TestSubmitDirectSuccess(t *testing.T) {
	endpoint := &flakyEndpoint{}
	srv := httptest.NewServer(endpoint.handler())
	defer srv.Close()

	handler := &recordingHandler{}
	c, err := capture.New(testConfig(srv.URL), capture.WithEventHandler(handler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outcome := c.Submit(context.Background(), validLead())
	if outcome.Kind != capture.SentImmediately {
		t.Fatalf("outcome = %v (%s)", outcome.Kind, outcome.Message)
	}
	if outcome.RecordID == "" {
		t.Fatal("outcome has no record id")
	}

	n, err := c.QueueLen(context.Background())
	if err != nil {
		t.Fatalf("QueueLen: %v", err)
	}
	if n != 0 {
		t.Fatalf("queue length = %d, want 0", n)
	}

	disps := handler.submissionDispositions()
	if len(disps) != 1 || disps[0] != "sent" {
		t.Fatalf("dispositions = %v, want [sent]", disps)
	}
}

func TestSubmitQueuesOnFailureAndReplays(t *testing.T) {
	endpoint := &flakyEndpoint{failures: 1}
	srv := httptest.NewServer(endpoint.handler())
	defer srv.Close()

	handler := &recordingHandler{}
	c, err := capture.New(testConfig(srv.URL), capture.WithEventHandler(handler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outcome := c.Submit(context.Background(), validLead())
	if outcome.Kind != capture.QueuedForRetry {
		t.Fatalf("outcome = %v, want QueuedForRetry", outcome.Kind)
	}
	if outcome.Message == "" {
		t.Fatal("queued outcome carries no user-facing message")
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	// Connectivity restored: kick ignores the backoff schedule.
	c.Kick()

	waitFor(t, 2*time.Second, func() bool {
		n, err := c.QueueLen(context.Background())
		return err == nil && n == 0
	})

	waitFor(t, 2*time.Second, func() bool {
		for _, d := range handler.submissionDispositions() {
			if d == "sent" {
				return true
			}
		}
		return false
	})
}

func TestSubmitDeadLettersAfterBudget(t *testing.T) {
	endpoint := &flakyEndpoint{failures: 1 << 20}
	srv := httptest.NewServer(endpoint.handler())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 2

	handler := &recordingHandler{}
	c, err := capture.New(cfg, capture.WithEventHandler(handler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outcome := c.Submit(context.Background(), validLead())
	if outcome.Kind != capture.QueuedForRetry {
		t.Fatalf("outcome = %v, want QueuedForRetry", outcome.Kind)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	c.Kick()

	waitFor(t, 2*time.Second, func() bool {
		letters, err := c.DeadLetters(context.Background())
		return err == nil && len(letters) == 1
	})

	letters, err := c.DeadLetters(context.Background())
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if letters[0].Email != "ada@example.com" {
		t.Fatalf("dead letter email = %q", letters[0].Email)
	}
	if letters[0].Attempts != 2 {
		t.Fatalf("dead letter attempts = %d, want 2", letters[0].Attempts)
	}

	handler.mu.Lock()
	var sawDeadLetter bool
	for _, s := range handler.submissions {
		if s.Disposition == "dead_lettered" && s.Message != "" {
			sawDeadLetter = true
		}
	}
	handler.mu.Unlock()
	if !sawDeadLetter {
		t.Fatal("no dead_lettered submission event with user-facing copy")
	}
}

// =============================================================================
// Analytics and Fragments
// =============================================================================

type testProvider struct {
	id        string
	mu        sync.Mutex
	delivered []capture.Event
}

func (p *testProvider) ID() string { return p.id }

func (p *testProvider) Deliver(ctx context.Context, e capture.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = append(p.delivered, e)
	return nil
}

func (p *testProvider) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.delivered))
	for _, e := range p.delivered {
		out = append(out, e.Name)
	}
	return out
}

func TestSubmissionEmitsConversionEvent(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	c, err := capture.New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	provider := &testProvider{id: "ga4"}
	c.RegisterProvider(provider)
	c.ProviderReady(context.Background(), "ga4")

	if outcome := c.Submit(context.Background(), validLead()); outcome.Kind != capture.SentImmediately {
		t.Fatalf("outcome = %v", outcome.Kind)
	}

	var sawConversion bool
	for _, name := range provider.names() {
		if name == "lead_submitted" {
			sawConversion = true
		}
	}
	if !sawConversion {
		t.Fatalf("provider events = %v, want lead_submitted", provider.names())
	}
}

func TestTrackBuffersUntilProviderReady(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	c, err := capture.New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	provider := &testProvider{id: "ads"}
	c.RegisterProvider(provider)

	c.Track(context.Background(), capture.Event{Name: "page_view"})
	if got := provider.names(); len(got) != 0 {
		t.Fatalf("events delivered before ready: %v", got)
	}

	c.ProviderReady(context.Background(), "ads")
	if got := provider.names(); len(got) != 1 || got[0] != "page_view" {
		t.Fatalf("events after ready = %v, want [page_view]", got)
	}
}

func TestFragmentFallsBackToDefault(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	// No FragmentBaseURL configured: only defaults can serve.
	c, err := capture.New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := c.Fragment(context.Background(), "footer"); ok {
		t.Fatal("fragment served with no source configured")
	}

	c.RegisterFragmentDefault("footer", "<footer>fallback</footer>")
	markup, ok := c.Fragment(context.Background(), "footer")
	if !ok || markup != "<footer>fallback</footer>" {
		t.Fatalf("fragment = %q, %v", markup, ok)
	}
}

// =============================================================================
// Exit Intent
// =============================================================================

func TestSessionVariantIsStable(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	c, err := capture.New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v := c.SessionVariant()
	if v != "control" && v != "treatment" {
		t.Fatalf("variant = %q", v)
	}
	for i := 0; i < 5; i++ {
		if got := c.SessionVariant(); got != v {
			t.Fatalf("variant changed: %q then %q", v, got)
		}
	}
}

func TestSubmitOfferWithoutShownOfferIsRejected(t *testing.T) {
	srv := httptest.NewServer((&flakyEndpoint{}).handler())
	defer srv.Close()

	c, err := capture.New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outcome := c.SubmitOffer(context.Background(), validLead())
	if outcome.Kind != capture.Rejected {
		t.Fatalf("outcome = %v, want Rejected", outcome.Kind)
	}
}
