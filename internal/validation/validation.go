package validation

import (
	"errors"
	"strings"
)

// ErrQueryEmpty is returned when the query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("query is required")

// ValidateQuery trims the input and rejects it when nothing is left.
// Any other text is passed to the provider unchanged; the provider decides
// whether it names a real place.
func ValidateQuery(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrQueryEmpty
	}
	return s, nil
}
