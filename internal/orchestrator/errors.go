package orchestrator

import "fmt"

// Category is the coarse classification every orchestration failure carries.
// Callers receive exactly one category, never raw provider text, URLs, or
// stack traces.
type Category string

const (
	CategoryValidation  Category = "validation_error"
	CategorySSRFBlocked Category = "ssrf_blocked"
	CategoryTimeout     Category = "provider_timeout"
	CategoryProvider    Category = "provider_error"
	CategoryExhausted   Category = "all_providers_exhausted"
	CategoryCancelled   Category = "cancelled"
)

// Error is the only error type Extract returns.
type Error struct {
	Category Category
	// Last holds the category of the final provider failure when Category
	// is CategoryExhausted.
	Last Category
	err  error
}

func (e *Error) Error() string {
	if e.Category == CategoryExhausted && e.Last != "" {
		return fmt.Sprintf("%s (last: %s)", e.Category, e.Last)
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.err)
	}
	return string(e.Category)
}

func (e *Error) Unwrap() error { return e.err }

// CategoryOf returns the category of err, or "" for nil / foreign errors.
func CategoryOf(err error) Category {
	if oe, ok := err.(*Error); ok {
		return oe.Category
	}
	return ""
}
