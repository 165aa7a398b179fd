package lookup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/validation"
)

// Controller owns the state of one lookup widget: the input text, the
// loading flag and the outcome of the latest submission. It is safe for
// concurrent use; overlapping submissions resolve last-submission-wins.
type Controller struct {
	provider client.WeatherClient
	logger   *zap.Logger
	recorder OutcomeRecorder

	mu         sync.Mutex
	input      string
	loading    bool
	outcome    Outcome
	generation uint64
}

// OutcomeRecorder receives one call per provider round trip, including
// round trips whose response is discarded as superseded.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Option configures a Controller.
type Option func(*Controller)

// WithOutcomeRecorder reports provider round trips to r. Network failures
// count as errors; successes and provider error payloads count as successes.
func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// NewController returns an idle controller backed by provider. The provider
// carries its own API key; nothing is read from the environment here.
func NewController(provider client.WeatherClient, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		provider: provider,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnInputChange records newValue as the input and clears any displayed
// result or error. It does not affect a lookup that is already in flight.
func (c *Controller) OnInputChange(newValue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = newValue
	c.outcome = nil
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	return View{Input: c.input, Loading: c.loading, Outcome: c.outcome}
}

// Submit runs one lookup cycle for the current input and returns the view
// after it settles. An empty query fails without contacting the provider.
// If another Submit starts before this one settles, this one's outcome is
// discarded and the returned view reflects whatever is current.
func (c *Controller) Submit(ctx context.Context) View {
	logger := observability.LoggerFromContext(ctx, c.logger)
	start := time.Now()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	raw := c.input

	query, err := validation.ValidateQuery(raw)
	if err != nil {
		lerr := classify(err)
		c.outcome = Failure{Err: lerr}
		c.loading = false
		v := c.viewLocked()
		c.mu.Unlock()
		observability.RecordLookup(lerr.Kind.String(), time.Since(start))
		logger.Debug("lookup rejected", zap.Uint64("generation", gen), zap.String("reason", lerr.Message))
		return v
	}

	c.loading = true
	c.mu.Unlock()

	logger.Debug("lookup started", zap.Uint64("generation", gen), zap.String("query", query))
	observability.LookupsInFlight.Inc()

	settled := false
	defer func() {
		observability.LookupsInFlight.Dec()
		if settled {
			return
		}
		// r is nil when the provider called runtime.Goexit; let it unwind.
		r := recover()
		c.settle(logger, gen, start, models.WeatherResult{}, fmt.Errorf("weather provider exited without a result: %v", r))
		if r != nil {
			panic(r)
		}
	}()

	result, callErr := c.provider.GetCurrentWeather(ctx, query)
	settled = true
	return c.settle(logger, gen, start, result, callErr)
}

// settle records a provider round trip and applies its outcome if gen is
// still the latest submission.
func (c *Controller) settle(logger *zap.Logger, gen uint64, start time.Time, result models.WeatherResult, callErr error) View {
	c.recordRoundTrip(callErr)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		observability.LookupsSupersededTotal.Inc()
		logger.Info("discarding superseded lookup response",
			zap.Uint64("generation", gen),
			zap.Uint64("current_generation", c.generation))
		return c.viewLocked()
	}

	c.loading = false
	if callErr != nil {
		lerr := classify(callErr)
		c.outcome = Failure{Err: lerr}
		observability.RecordLookup(lerr.Kind.String(), time.Since(start))
		if lerr.Kind == KindNetwork {
			logger.Warn("lookup failed", zap.Uint64("generation", gen), zap.String("kind", lerr.Kind.String()), zap.Error(lerr.Err))
		} else {
			logger.Debug("lookup failed", zap.Uint64("generation", gen), zap.String("kind", lerr.Kind.String()), zap.String("message", lerr.Message))
		}
		return c.viewLocked()
	}

	c.outcome = Success{Result: result}
	observability.RecordLookup("success", time.Since(start))
	logger.Debug("lookup succeeded",
		zap.Uint64("generation", gen),
		zap.String("city", result.City),
		zap.Duration("duration", time.Since(start)))
	return c.viewLocked()
}

func (c *Controller) recordRoundTrip(callErr error) {
	if c.recorder == nil {
		return
	}
	if callErr != nil && classify(callErr).Kind == KindNetwork {
		c.recorder.RecordError()
		return
	}
	c.recorder.RecordSuccess()
}
