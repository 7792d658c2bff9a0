package validation

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Validation rule patterns
var (
	// Phone numbers: optional leading +, then digits with spaces or dashes
	PhonePattern = `^\+?[0-9][0-9 \-]{6,18}[0-9]$`

	// Clock times on a 24 hour clock, e.g. 09:30
	ClockTimePattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`
)

// CompiledPatterns caches compiled regex patterns for better performance
var CompiledPatterns = struct {
	Phone     *regexp.Regexp
	ClockTime *regexp.Regexp
}{
	Phone:     regexp.MustCompile(PhonePattern),
	ClockTime: regexp.MustCompile(ClockTimePattern),
}

// Rule tags usable in `binding` and `validate` struct tags
const (
	TagPhone     = "phone"
	TagClockTime = "clocktime"
)

// Messages describes each rule for error responses
var Messages = map[string]string{
	TagPhone:     "must be a valid phone number",
	TagClockTime: "must be a time of day in HH:MM format",
}

// RegisterRules adds the academy rules to v
func RegisterRules(v *validator.Validate) error {
	rules := map[string]*regexp.Regexp{
		TagPhone:     CompiledPatterns.Phone,
		TagClockTime: CompiledPatterns.ClockTime,
	}
	for tag, pattern := range rules {
		if err := v.RegisterValidation(tag, matches(pattern)); err != nil {
			return fmt.Errorf("register %s rule: %w", tag, err)
		}
	}
	return nil
}

func matches(pattern *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	}
}
