package models

// WeatherResult is the current-conditions payload shown by the widget.
type WeatherResult struct {
	City               string  `json:"city"`
	Country            string  `json:"country"`
	TemperatureCelsius float64 `json:"temperatureCelsius"`
	ConditionCode      int     `json:"conditionCode"`
	IconURL            string  `json:"iconUrl"`
	ConditionText      string  `json:"conditionText"`
}
