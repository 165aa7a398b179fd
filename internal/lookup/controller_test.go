package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

var london = models.WeatherResult{
	City:               "London",
	Country:            "United Kingdom",
	TemperatureCelsius: 15,
	ConditionCode:      1003,
	IconURL:            "https://x/64.png",
	ConditionText:      "Partly cloudy",
}

type providerReply struct {
	result models.WeatherResult
	err    error
}

// mockProvider answers from a fixed reply, or from a per-call channel when gated.
type mockProvider struct {
	mu      sync.Mutex
	reply   providerReply
	gates   map[string]chan providerReply
	queries []string
	calls   atomic.Int32
	started chan string
}

func (m *mockProvider) GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.queries = append(m.queries, location)
	gate := m.gates[location]
	reply := m.reply
	m.mu.Unlock()

	if m.started != nil {
		m.started <- location
	}
	if gate != nil {
		reply = <-gate
	}
	return reply.result, reply.err
}

func (m *mockProvider) gate(location string) chan providerReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gates == nil {
		m.gates = make(map[string]chan providerReply)
	}
	ch := make(chan providerReply, 1)
	m.gates[location] = ch
	return ch
}

func TestController_InitialState(t *testing.T) {
	c := NewController(&mockProvider{}, zaptest.NewLogger(t))
	v := c.View()

	if v.Input != "" || v.Loading || v.Outcome != nil {
		t.Errorf("initial view = %+v, want zero", v)
	}
	if _, ok := v.Result(); ok {
		t.Error("initial view should have no result")
	}
	if es := v.ErrorState(); es.Present || es.Message != "" {
		t.Errorf("initial ErrorState = %+v, want {false, \"\"}", es)
	}
	if v.Status() != "idle" {
		t.Errorf("Status() = %q, want idle", v.Status())
	}
}

func TestController_Submit_EmptyInputNeverCallsProvider(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n", "\u00a0 \r"} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			p := &mockProvider{reply: providerReply{result: london}}
			c := NewController(p, zaptest.NewLogger(t))
			c.OnInputChange(input)

			v := c.Submit(context.Background())

			if got := p.calls.Load(); got != 0 {
				t.Errorf("provider calls = %d, want 0", got)
			}
			es := v.ErrorState()
			if !es.Present || es.Message != "City field is required" {
				t.Errorf("ErrorState = %+v, want {true, City field is required}", es)
			}
			if es.Kind != "validation_error" {
				t.Errorf("Kind = %q, want validation_error", es.Kind)
			}
			if v.Loading {
				t.Error("Loading = true after validation failure")
			}
		})
	}
}

func TestController_Submit_SuccessIsPureMapping(t *testing.T) {
	p := &mockProvider{reply: providerReply{result: london}}
	c := NewController(p, zaptest.NewLogger(t))
	c.OnInputChange("London")

	v := c.Submit(context.Background())

	got, ok := v.Result()
	if !ok {
		t.Fatalf("Result() missing, view = %+v", v)
	}
	if got != london {
		t.Errorf("Result() = %+v, want %+v", got, london)
	}
	if v.ErrorState().Present {
		t.Error("ErrorState present after success")
	}
	if v.Loading {
		t.Error("Loading = true after settlement")
	}
	if v.Status() != "success" {
		t.Errorf("Status() = %q, want success", v.Status())
	}

	d := NewDisplay(got)
	if d.Heading != "London, United Kingdom" || d.Temperature != "15 °C" || d.Condition != "Partly cloudy" {
		t.Errorf("display = %+v", d)
	}
}

func TestController_Submit_SendsTrimmedQuery(t *testing.T) {
	p := &mockProvider{reply: providerReply{result: london}}
	c := NewController(p, zaptest.NewLogger(t))
	c.OnInputChange("  London  ")

	c.Submit(context.Background())

	if len(p.queries) != 1 || p.queries[0] != "London" {
		t.Errorf("queries = %q, want [London]", p.queries)
	}
	if got := c.View().Input; got != "  London  " {
		t.Errorf("Input = %q, want the untrimmed text the user typed", got)
	}
}

func TestController_Submit_ProviderErrorVerbatim(t *testing.T) {
	p := &mockProvider{reply: providerReply{err: &client.APIError{StatusCode: 400, Code: 1006, Message: "No matching location found."}}}
	c := NewController(p, zaptest.NewLogger(t))
	c.OnInputChange("Nowhereville")

	v := c.Submit(context.Background())

	es := v.ErrorState()
	if !es.Present || es.Message != "No matching location found." {
		t.Errorf("ErrorState = %+v, want provider message", es)
	}
	if es.Kind != "provider_error" {
		t.Errorf("Kind = %q, want provider_error", es.Kind)
	}
	if _, ok := v.Result(); ok {
		t.Error("Result() present after provider error")
	}
}

func TestController_Submit_NetworkErrors(t *testing.T) {
	refused := &url.Error{Op: "Get", URL: "[redacted]", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unreachable", fmt.Errorf("http request failed: %w", refused), MsgProviderUnreachable},
		{"timeout", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), MsgProviderTimeout},
		{"bad json", fmt.Errorf("%w: parse response: unexpected end", client.ErrMalformedResponse), MsgProviderUnreadable},
		{"non-json 502", fmt.Errorf("%w: HTTP 502", client.ErrUpstreamStatus), MsgProviderStatus},
		{"breaker open", fmt.Errorf("%w: circuit breaker open", client.ErrUnavailable), MsgProviderUnavailable},
		{"anything else", errors.New(""), MsgProviderUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{reply: providerReply{err: tt.err}}
			c := NewController(p, zaptest.NewLogger(t))
			c.OnInputChange("London")

			v := c.Submit(context.Background())

			es := v.ErrorState()
			if !es.Present || es.Kind != "network_error" {
				t.Fatalf("ErrorState = %+v, want network_error", es)
			}
			if es.Message != tt.want {
				t.Errorf("Message = %q, want %q", es.Message, tt.want)
			}
			f, ok := v.Outcome.(Failure)
			if !ok || !errors.Is(f.Err, tt.err) {
				t.Errorf("Failure.Err should wrap the provider error")
			}
		})
	}
}

func TestController_OnInputChange_ResetsOutcome(t *testing.T) {
	p := &mockProvider{reply: providerReply{result: london}}
	c := NewController(p, zaptest.NewLogger(t))

	c.OnInputChange("London")
	c.Submit(context.Background())
	c.OnInputChange("Londo")
	v := c.View()
	if _, ok := v.Result(); ok {
		t.Error("Result() should be absent after input change")
	}
	if v.Input != "Londo" {
		t.Errorf("Input = %q, want Londo", v.Input)
	}

	c.OnInputChange("   ")
	c.Submit(context.Background())
	c.OnInputChange("Paris")
	if es := c.View().ErrorState(); es.Present || es.Message != "" {
		t.Errorf("ErrorState = %+v, want cleared after input change", es)
	}
}

func TestController_SuccessClearsPriorError_FailureClearsPriorResult(t *testing.T) {
	p := &mockProvider{}
	c := NewController(p, zaptest.NewLogger(t))

	c.OnInputChange(" ")
	c.Submit(context.Background())

	// Resubmitting without editing: the stale error must not survive a success.
	c.mu.Lock()
	c.input = "London"
	c.mu.Unlock()
	p.reply = providerReply{result: london}
	v := c.Submit(context.Background())
	if v.ErrorState().Present {
		t.Error("stale error survived a successful lookup")
	}

	p.reply = providerReply{err: &client.APIError{Message: "API key has been disabled."}}
	v = c.Submit(context.Background())
	if _, ok := v.Result(); ok {
		t.Error("stale result survived a failed lookup")
	}
	if v.ErrorState().Message != "API key has been disabled." {
		t.Errorf("ErrorState = %+v", v.ErrorState())
	}
}

func TestController_LoadingOnlyWhileInFlight(t *testing.T) {
	p := &mockProvider{started: make(chan string, 1)}
	gate := p.gate("London")
	c := NewController(p, zaptest.NewLogger(t))
	c.OnInputChange("London")

	if c.View().Loading {
		t.Fatal("Loading before submit")
	}

	done := make(chan View, 1)
	go func() { done <- c.Submit(context.Background()) }()

	<-p.started
	if !c.View().Loading {
		t.Error("Loading = false while provider call is in flight")
	}

	gate <- providerReply{result: london}
	v := <-done
	if v.Loading || c.View().Loading {
		t.Error("Loading = true after settlement")
	}
}

func TestController_LastSubmissionWins(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := &mockProvider{started: make(chan string, 2)}
	slow := p.gate("London")
	fast := p.gate("Paris")
	c := NewController(p, zap.New(core))

	c.OnInputChange("London")
	first := make(chan View, 1)
	go func() { first <- c.Submit(context.Background()) }()
	<-p.started

	c.OnInputChange("Paris")
	second := make(chan View, 1)
	go func() { second <- c.Submit(context.Background()) }()
	<-p.started

	paris := models.WeatherResult{City: "Paris", Country: "France", TemperatureCelsius: 18.5, ConditionText: "Sunny"}
	fast <- providerReply{result: paris}
	v := <-second
	if got, _ := v.Result(); got.City != "Paris" {
		t.Fatalf("second submission result = %+v, want Paris", got)
	}
	if v.Loading {
		t.Error("Loading = true after latest submission settled")
	}

	// The older, slower response arrives last and must not overwrite Paris.
	slow <- providerReply{result: london}
	<-first
	got, ok := c.View().Result()
	if !ok || got.City != "Paris" {
		t.Errorf("final result = %+v, want Paris", got)
	}
	if logs.FilterMessage("discarding superseded lookup response").Len() != 1 {
		t.Errorf("expected one superseded log entry, got %d", logs.FilterMessage("discarding superseded lookup response").Len())
	}
}

func TestController_StaleResponseKeepsLoadingForNewer(t *testing.T) {
	p := &mockProvider{started: make(chan string, 2)}
	slow := p.gate("London")
	fast := p.gate("Paris")
	c := NewController(p, zaptest.NewLogger(t))

	c.OnInputChange("London")
	first := make(chan View, 1)
	go func() { first <- c.Submit(context.Background()) }()
	<-p.started

	c.OnInputChange("Paris")
	second := make(chan View, 1)
	go func() { second <- c.Submit(context.Background()) }()
	<-p.started

	slow <- providerReply{result: london}
	<-first
	if !c.View().Loading {
		t.Error("settling a superseded lookup must not clear Loading for the newer one")
	}
	if _, ok := c.View().Result(); ok {
		t.Error("superseded response must not be displayed")
	}

	fast <- providerReply{err: &client.APIError{Message: "No matching location found."}}
	v := <-second
	if v.Loading {
		t.Error("Loading = true after latest submission settled")
	}
	if v.ErrorState().Message != "No matching location found." {
		t.Errorf("ErrorState = %+v", v.ErrorState())
	}
}

func TestController_ValidationSupersedesInFlight(t *testing.T) {
	p := &mockProvider{started: make(chan string, 1)}
	slow := p.gate("London")
	c := NewController(p, zaptest.NewLogger(t))

	c.OnInputChange("London")
	first := make(chan View, 1)
	go func() { first <- c.Submit(context.Background()) }()
	<-p.started

	c.OnInputChange("")
	v := c.Submit(context.Background())
	if v.Loading {
		t.Error("Loading = true after the latest submission failed validation")
	}

	slow <- providerReply{result: london}
	<-first
	if es := c.View().ErrorState(); es.Message != MsgCityRequired {
		t.Errorf("ErrorState = %+v, want validation error to remain", es)
	}
}

type panickingProvider struct{}

func (panickingProvider) GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error) {
	panic("boom")
}

func TestController_PanicStillResetsLoading(t *testing.T) {
	c := NewController(panickingProvider{}, zaptest.NewLogger(t))
	c.OnInputChange("London")

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		c.Submit(context.Background())
	}()

	v := c.View()
	if v.Loading {
		t.Error("Loading = true after provider panic")
	}
	if es := v.ErrorState(); es.Kind != "network_error" {
		t.Errorf("ErrorState = %+v, want network_error", es)
	}
}

type exitingProvider struct{}

func (exitingProvider) GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error) {
	runtime.Goexit()
	return models.WeatherResult{}, nil
}

func TestController_GoexitSettlesWithoutPanic(t *testing.T) {
	c := NewController(exitingProvider{}, zaptest.NewLogger(t))
	c.OnInputChange("London")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Submit(context.Background())
	}()
	<-done

	v := c.View()
	if v.Loading {
		t.Error("Loading = true after provider exited")
	}
	if es := v.ErrorState(); es.Kind != "network_error" {
		t.Errorf("ErrorState = %+v, want network_error", es)
	}
}

// countingRecorder tallies provider round trips.
type countingRecorder struct {
	mu        sync.Mutex
	successes int
	errors    int
}

func (r *countingRecorder) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
}

func (r *countingRecorder) RecordError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func (r *countingRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes, r.errors
}

func TestController_RecordsEveryRoundTrip(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		reply         providerReply
		wantSuccesses int
		wantErrors    int
	}{
		{"success", "London", providerReply{result: london}, 1, 0},
		{"provider error payload", "Atlantis", providerReply{err: &client.APIError{Code: 1006, Message: "No matching location found."}}, 1, 0},
		{"network error", "London", providerReply{err: client.ErrUpstreamStatus}, 0, 1},
		{"validation skips provider", "   ", providerReply{result: london}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			c := NewController(&mockProvider{reply: tt.reply}, zaptest.NewLogger(t), WithOutcomeRecorder(rec))
			c.OnInputChange(tt.input)
			c.Submit(context.Background())

			if s, e := rec.counts(); s != tt.wantSuccesses || e != tt.wantErrors {
				t.Errorf("recorded (successes, errors) = (%d, %d), want (%d, %d)", s, e, tt.wantSuccesses, tt.wantErrors)
			}
		})
	}
}

// TestController_RecordsSupersededRoundTrip verifies the older response is
// recorded as what it was, not as the newer lookup's outcome.
func TestController_RecordsSupersededRoundTrip(t *testing.T) {
	p := &mockProvider{started: make(chan string, 2)}
	slow := p.gate("London")
	fast := p.gate("Paris")
	rec := &countingRecorder{}
	c := NewController(p, zaptest.NewLogger(t), WithOutcomeRecorder(rec))

	c.OnInputChange("London")
	first := make(chan View, 1)
	go func() { first <- c.Submit(context.Background()) }()
	<-p.started

	c.OnInputChange("Paris")
	second := make(chan View, 1)
	go func() { second <- c.Submit(context.Background()) }()
	<-p.started

	fast <- providerReply{err: client.ErrUpstreamStatus}
	<-second
	slow <- providerReply{result: london}
	<-first

	if s, e := rec.counts(); s != 1 || e != 1 {
		t.Errorf("recorded (successes, errors) = (%d, %d), want (1, 1)", s, e)
	}
}

func TestController_ConcurrentUse(t *testing.T) {
	p := &mockProvider{reply: providerReply{result: london}}
	c := NewController(p, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.OnInputChange(fmt.Sprintf("city-%d", i))
		}(i)
		go func() {
			defer wg.Done()
			c.Submit(context.Background())
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for c.View().Loading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.View().Loading {
		t.Error("Loading stuck after all submissions settled")
	}
}

func TestError_Format(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	e := &Error{Kind: KindNetwork, Message: MsgProviderUnreachable, Err: cause}
	if !errors.Is(e, cause) {
		t.Error("Error should unwrap to its cause")
	}
	if got := (&Error{Kind: KindValidation, Message: MsgCityRequired}).Error(); got != "validation_error: City field is required" {
		t.Errorf("Error() = %q", got)
	}
	if Kind(0).String() != "unknown" {
		t.Errorf("Kind(0).String() = %q, want unknown", Kind(0).String())
	}
}
