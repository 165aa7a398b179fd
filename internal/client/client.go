package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-lookup-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
)

// WeatherClient fetches current conditions for a free-text location.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error)
}

var (
	// ErrProviderRejected marks a well-formed provider error payload (*APIError).
	ErrProviderRejected = errors.New("provider rejected request")
	// ErrUpstreamStatus is a non-2xx response whose body is not a provider error payload.
	ErrUpstreamStatus = errors.New("upstream failure")
	// ErrMalformedResponse is a 2xx response that could not be decoded into current conditions.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrUnavailable is returned without calling the provider while the circuit breaker is open.
	ErrUnavailable = errors.New("weather provider unavailable")
)

// APIError is the provider's own error payload, e.g.
// {"error":{"code":1006,"message":"No matching location found."}}.
// It may arrive with any HTTP status, including 200.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weather provider error %d (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrProviderRejected) true for any *APIError.
func (e *APIError) Is(target error) bool {
	return target == ErrProviderRejected
}

const currentPath = "current.json"

// WeatherAPIClient calls the WeatherAPI.com current conditions endpoint.
// It does not retry: one submission is one request.
type WeatherAPIClient struct {
	apiKey  string
	baseURL *url.URL
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// DefaultTimeout bounds a round trip when the caller passes no timeout.
const DefaultTimeout = 10 * time.Second

// NewWeatherAPIClient creates a client for the API rooted at apiURL
// (e.g. https://api.weatherapi.com/v1). An empty apiKey is accepted; the
// provider answers with an error payload that surfaces like any other
// provider error. timeout bounds a single HTTP round trip; zero or negative
// means DefaultTimeout.
func NewWeatherAPIClient(apiKey, apiURL string, timeout time.Duration) (*WeatherAPIClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", apiURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q: missing host", apiURL)
	}

	return &WeatherAPIClient{
		apiKey:  apiKey,
		baseURL: base,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards subsequent calls with cb. Provider error payloads
// do not count as breaker failures.
func (c *WeatherAPIClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type weatherAPIResponse struct {
	Location *struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current *struct {
		TempC     float64 `json:"temp_c"`
		Condition struct {
			Text string `json:"text"`
			Icon string `json:"icon"`
			Code int    `json:"code"`
		} `json:"condition"`
	} `json:"current"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetCurrentWeather performs one lookup. The body is decoded before the HTTP
// status is considered, because the provider reports errors such as unknown
// locations inside a JSON payload.
func (c *WeatherAPIClient) GetCurrentWeather(ctx context.Context, location string) (models.WeatherResult, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, location)
	}

	var result models.WeatherResult
	var apiErr error
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		result, callErr = c.callAPI(ctx, location)
		if errors.Is(callErr, ErrProviderRejected) {
			apiErr = callErr
			return nil
		}
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryUnavailable)).Inc()
		return models.WeatherResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return models.WeatherResult{}, err
	}
	if apiErr != nil {
		return models.WeatherResult{}, apiErr
	}
	return result, nil
}

func (c *WeatherAPIClient) callAPI(ctx context.Context, location string) (models.WeatherResult, error) {
	start := time.Now()

	result, status, err := c.roundTrip(ctx, location)
	if status == "" {
		status = "error"
	}
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	}
	return result, err
}

func (c *WeatherAPIClient) roundTrip(ctx context.Context, location string) (models.WeatherResult, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, location)
	if err != nil {
		return models.WeatherResult{}, "", fmt.Errorf("build request: %w", err)
	}

	if corrID := CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		err = redactURL(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherResult{}, "", fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherResult{}, "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherResult{}, status, fmt.Errorf("read response body: %w", redactURL(err))
	}

	result, err := c.decodeResponse(resp.StatusCode, body)
	return result, status, err
}

func (c *WeatherAPIClient) decodeResponse(statusCode int, body []byte) (models.WeatherResult, error) {
	ok := statusCode >= 200 && statusCode < 300

	var apiResp weatherAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if !ok {
			return models.WeatherResult{}, fmt.Errorf("%w: HTTP %d", ErrUpstreamStatus, statusCode)
		}
		return models.WeatherResult{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}

	if apiResp.Error != nil {
		return models.WeatherResult{}, &APIError{
			StatusCode: statusCode,
			Code:       apiResp.Error.Code,
			Message:    apiResp.Error.Message,
		}
	}
	if !ok {
		return models.WeatherResult{}, fmt.Errorf("%w: HTTP %d", ErrUpstreamStatus, statusCode)
	}
	if apiResp.Location == nil || apiResp.Current == nil {
		return models.WeatherResult{}, fmt.Errorf("%w: missing location or current conditions", ErrMalformedResponse)
	}

	return c.mapResponse(apiResp), nil
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, location string) (*http.Request, error) {
	endpoint := c.baseURL.JoinPath(currentPath)

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", location)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redactURL(err))
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// mapResponse copies provider fields one to one. The only rewrite is the
// icon URL, which the provider sends scheme-relative.
func (c *WeatherAPIClient) mapResponse(apiResp weatherAPIResponse) models.WeatherResult {
	return models.WeatherResult{
		City:               apiResp.Location.Name,
		Country:            apiResp.Location.Country,
		TemperatureCelsius: apiResp.Current.TempC,
		ConditionCode:      apiResp.Current.Condition.Code,
		IconURL:            c.resolveIconURL(apiResp.Current.Condition.Icon),
		ConditionText:      apiResp.Current.Condition.Text,
	}
}

// resolveIconURL turns "//cdn.weatherapi.com/x.png" into an absolute URL using
// the API base URL's scheme. Absolute URLs pass through; unparseable ones are dropped.
func (c *WeatherAPIClient) resolveIconURL(icon string) string {
	if icon == "" {
		return ""
	}
	ref, err := url.Parse(icon)
	if err != nil {
		return ""
	}
	return c.baseURL.ResolveReference(ref).String()
}

// redactURL strips the request URL from transport errors; it carries the API key.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: "[redacted]", Err: urlErr.Err}
	}
	return err
}

type correlationIDKey struct{}

// WithCorrelationID returns a context whose outbound provider requests carry corrID.
func WithCorrelationID(ctx context.Context, corrID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, corrID)
}

// CorrelationIDFromContext returns the id set by WithCorrelationID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if corrID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return corrID
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
