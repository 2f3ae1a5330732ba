package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// injectionPatterns match statement and template syntax. Plain English that
// happens to use words like "update ... from" must pass.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|INSERT|UPDATE|ALTER|SELECT)\b`),
	regexp.MustCompile(`\$\{[^}]*\}`),
}

// MaxQueryLength bounds a chat query in runes.
const MaxQueryLength = 1000

// ValidateOrder checks an order before it is indexed.
func ValidateOrder(o Order) error {
	if strings.TrimSpace(o.Orderno) == "" {
		return NewValidationError("orderno", o.Orderno, ErrMissingOrderNo)
	}
	if o.Qty < 0 {
		return NewValidationError("qty", fmt.Sprintf("%g", o.Qty), ErrInvalidQuantity)
	}
	return nil
}

// ValidateVehicle checks a vehicle before it is indexed.
func ValidateVehicle(v Vehicle) error {
	if strings.TrimSpace(v.Name) == "" {
		return NewValidationError("name", v.Name, ErrMissingName)
	}
	if v.LastUpdate.Speed < 0 {
		return NewValidationError("last_update.spd", fmt.Sprintf("%g", v.LastUpdate.Speed), ErrNegativeSpeed)
	}
	if lat := v.LastUpdate.Lat; lat != nil && (*lat < -90 || *lat > 90) {
		return NewValidationError("last_update.lat", fmt.Sprintf("%g", *lat), ErrInvalidCoordinates)
	}
	if lng := v.LastUpdate.Lng; lng != nil && (*lng < -180 || *lng > 180) {
		return NewValidationError("last_update.lng", fmt.Sprintf("%g", *lng), ErrInvalidCoordinates)
	}
	return nil
}

// ValidateQuery validates a chat query.
func ValidateQuery(text string) error {
	text = strings.TrimSpace(text)

	if text == "" {
		return NewValidationError("query", text, ErrQueryEmpty)
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return NewValidationError("query", string([]rune(text)[:32])+"...", ErrQueryTooLong)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("query", text, ErrQueryInjection)
		}
	}
	return nil
}
