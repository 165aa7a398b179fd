package http

import (
	"github.com/kjstillabower/weather-lookup-widget/internal/lookup"
	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// viewResponse is the JSON form of a lookup.View. Result and error are
// never both set.
type viewResponse struct {
	Input   string                `json:"input"`
	Loading bool                  `json:"loading"`
	Status  string                `json:"status"`
	Result  *models.WeatherResult `json:"result"`
	Display *lookup.Display       `json:"display,omitempty"`
	Error   lookup.ErrorState     `json:"error"`
}

func newViewResponse(v lookup.View) viewResponse {
	resp := viewResponse{
		Input:   v.Input,
		Loading: v.Loading,
		Status:  v.Status(),
		Error:   v.ErrorState(),
	}
	if r, ok := v.Result(); ok {
		d := lookup.NewDisplay(r)
		resp.Result = &r
		resp.Display = &d
	}
	return resp
}
