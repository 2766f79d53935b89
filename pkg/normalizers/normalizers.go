// Package normalizers provides field normalization functions for match comparison
package normalizers

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// Names of the built-in normalizers
const (
	Raw        = "raw"
	Text       = "text"
	Email      = "email"
	Phone      = "phone"
	Name       = "name"
	DigitsOnly = "digits_only"
	Lower      = "lowercase"
	TrimSpace  = "trim"
)

// PhoneDigits is the number of trailing digits kept by NormalizePhone.
const PhoneDigits = 10

// Registry is a read-only lookup of named normalizers. Build one with
// NewRegistry and share it; it is never mutated after construction.
type Registry struct {
	fns map[string]Normalizer
}

// NewRegistry creates a registry holding the built-in normalizers plus any extras.
// Extras with a built-in name replace the built-in.
func NewRegistry(extra map[string]Normalizer) *Registry {
	fns := map[string]Normalizer{
		Raw:        func(s string) string { return s },
		Text:       NormalizeText,
		Email:      NormalizeEmail,
		Phone:      NormalizePhone,
		Name:       NormalizeName,
		DigitsOnly: Digits,
		Lower:      Lowercase,
		TrimSpace:  Trim,
	}
	for name, fn := range extra {
		fns[name] = fn
	}
	return &Registry{fns: fns}
}

var defaultRegistry = NewRegistry(nil)

// Default returns the shared registry of built-in normalizers.
func Default() *Registry {
	return defaultRegistry
}

// Get retrieves a normalizer by name
func (r *Registry) Get(name string) (Normalizer, bool) {
	fn, ok := r.fns[name]
	return fn, ok
}

// Has reports whether a normalizer is registered under name
func (r *Registry) Has(name string) bool {
	_, ok := r.fns[name]
	return ok
}

// Names returns the registered normalizer names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply applies a named normalizer to a value. Unknown names leave the value untouched.
func (r *Registry) Apply(value, name string) string {
	fn, ok := r.fns[name]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func (r *Registry) ApplyChain(value string, names ...string) string {
	result := value
	for _, name := range names {
		result = r.Apply(result, name)
	}
	return result
}

// Chain resolves a comma-separated list of normalizer names, such as "trim,digits_only",
// into one normalizer applying them left to right. Every name must be registered.
func (r *Registry) Chain(spec string) (Normalizer, error) {
	parts := strings.Split(spec, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if !r.Has(name) {
			return nil, fmt.Errorf("unknown normalizer %q", name)
		}
		names = append(names, name)
	}
	if len(names) == 1 {
		return r.fns[names[0]], nil
	}
	return func(value string) string {
		return r.ApplyChain(value, names...)
	}, nil
}

// Built-in normalizers

// NormalizeText lowercases, composes to NFC and collapses whitespace runs to a
// single space. Composition runs after case folding: lowercasing can split a
// precomposed rune or leave a pair that only composes once lowered, so the
// reverse order is not idempotent.
func NormalizeText(s string) string {
	s = norm.NFC.String(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail normalizes an email address (lowercase, trim).
// Subaddresses and provider aliases are kept: "a+x@b.com" and "a@b.com" stay distinct.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips everything but digits and keeps the last PhoneDigits digits.
// Numbers from different countries sharing the same trailing digits compare equal.
func NormalizePhone(s string) string {
	digits := Digits(s)
	if len(digits) > PhoneDigits {
		return digits[len(digits)-PhoneDigits:]
	}
	return digits
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove extra whitespace
// - Remove common suffixes (Jr., Sr., III, etc.)
// - Remove punctuation
func NormalizeName(s string) string {
	s = norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dds"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// Digits keeps only ASCII digit characters
func Digits(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
