package lookup

import (
	"errors"

	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/validation"
)

// Kind is the closed set of lookup failure kinds.
type Kind int

const (
	// KindValidation is an empty or whitespace-only query; no request was made.
	KindValidation Kind = iota + 1
	// KindNetwork covers transport failures, timeouts, unreadable bodies and
	// non-2xx responses without a provider error payload.
	KindNetwork
	// KindProvider is an error payload returned by the weather provider.
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNetwork:
		return "network_error"
	case KindProvider:
		return "provider_error"
	default:
		return "unknown"
	}
}

// User-facing messages.
const (
	MsgCityRequired        = "City field is required"
	MsgProviderUnreachable = "Unable to reach the weather service. Please try again."
	MsgProviderTimeout     = "The weather service took too long to respond. Please try again."
	MsgProviderUnreadable  = "The weather service sent a response that could not be read."
	MsgProviderStatus      = "The weather service is having trouble right now. Please try again later."
	MsgProviderUnavailable = "The weather service is temporarily unavailable. Please try again later."
	MsgProviderRejected    = "The weather service could not answer this request."
)

// Error is the single failure type a lookup settles with.
// Message is safe to show to the user; Err keeps the cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify converts any error from validation or the provider into *Error.
func classify(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, validation.ErrQueryEmpty) {
		return &Error{Kind: KindValidation, Message: MsgCityRequired, Err: err}
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = MsgProviderRejected
		}
		return &Error{Kind: KindProvider, Message: msg, Err: err}
	}

	return &Error{Kind: KindNetwork, Message: networkMessage(client.CategorizeError(err)), Err: err}
}

func networkMessage(category client.ErrorCategory) string {
	switch category {
	case client.ErrorCategoryTimeout:
		return MsgProviderTimeout
	case client.ErrorCategoryParsing:
		return MsgProviderUnreadable
	case client.ErrorCategoryUpstream:
		return MsgProviderStatus
	case client.ErrorCategoryUnavailable:
		return MsgProviderUnavailable
	default:
		return MsgProviderUnreachable
	}
}
