package lookup

import (
	"strconv"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// Display is the result panel text for a WeatherResult.
type Display struct {
	Heading     string `json:"heading"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
	IconURL     string `json:"iconUrl,omitempty"`
	IconAlt     string `json:"iconAlt"`
}

// NewDisplay formats r for the result panel. The temperature keeps the
// provider's precision: 15 renders as "15 °C", 14.6 as "14.6 °C". The heading
// is "city, country", or just the city when the provider sends no country.
func NewDisplay(r models.WeatherResult) Display {
	heading := r.City
	if r.Country != "" {
		heading += ", " + r.Country
	}
	return Display{
		Heading:     heading,
		Temperature: strconv.FormatFloat(r.TemperatureCelsius, 'f', -1, 64) + " °C",
		Condition:   r.ConditionText,
		IconURL:     r.IconURL,
		IconAlt:     r.ConditionText,
	}
}
