package lookup

import "github.com/kjstillabower/weather-lookup-widget/internal/models"

// Outcome is the settled result of the most recent lookup: Success, Failure,
// or nil when nothing is shown. A view can never hold both a result and an error.
type Outcome interface {
	isOutcome()
}

// Success holds the result of a completed lookup.
type Success struct {
	Result models.WeatherResult
}

// Failure holds the error a lookup settled with.
type Failure struct {
	Err *Error
}

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// ErrorState is the inline field error shown under the input.
type ErrorState struct {
	Present bool   `json:"present"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// View is a snapshot of the controller.
type View struct {
	Input   string
	Loading bool
	Outcome Outcome
}

// Result returns the displayed weather result, if any.
func (v View) Result() (models.WeatherResult, bool) {
	if s, ok := v.Outcome.(Success); ok {
		return s.Result, true
	}
	return models.WeatherResult{}, false
}

// ErrorState returns the displayed error, or the zero ErrorState.
func (v View) ErrorState() ErrorState {
	if f, ok := v.Outcome.(Failure); ok && f.Err != nil {
		return ErrorState{Present: true, Kind: f.Err.Kind.String(), Message: f.Err.Message}
	}
	return ErrorState{}
}

// Status names the outcome for the JSON API: idle, success or error.
func (v View) Status() string {
	switch v.Outcome.(type) {
	case Success:
		return "success"
	case Failure:
		return "error"
	default:
		return "idle"
	}
}
