package matching

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// ConfigurationError reports an invalid field spec table, identity set or threshold.
// It is returned at construction time; an engine is never built from bad configuration.
type ConfigurationError struct {
	Policy  string
	Field   string
	Message string
}

// NewConfigurationErrorf creates a ConfigurationError with a formatted message
func NewConfigurationErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	path := []string{}
	if e.Policy != "" {
		path = append(path, fmt.Sprintf("policy '%s'", e.Policy))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}
	if len(path) == 0 {
		return "invalid configuration: " + e.Message
	}
	return "invalid configuration: " + strings.Join(path, " -> ") + ": " + e.Message
}

// AddPolicy sets the policy name the error belongs to
func (e *ConfigurationError) AddPolicy(name string) *ConfigurationError {
	e.Policy = name
	return e
}

// ToHTTPError converts the error for transport. Bad configuration is a server fault.
func (e *ConfigurationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, e.Error()).
		AddMetaValue("policy", e.Policy).
		AddMetaValue("field", e.Field)
}

// ValidationError reports a malformed input record. Index is the record's position
// in the caller's input, or -1 when the error concerns the batch as a whole.
type ValidationError struct {
	Collection string // "candidates" or "references"
	Index      int
	Field      string
	Message    string
}

// NewValidationErrorf creates a ValidationError with a formatted message
func NewValidationErrorf(collection string, index int, format string, args ...any) *ValidationError {
	return &ValidationError{Collection: collection, Index: index, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	path := []string{}
	if e.Collection != "" {
		if e.Index >= 0 {
			path = append(path, fmt.Sprintf("%s[%d]", e.Collection, e.Index))
		} else {
			path = append(path, e.Collection)
		}
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}
	if len(path) == 0 {
		return "invalid input: " + e.Message
	}
	return "invalid input: " + strings.Join(path, " -> ") + ": " + e.Message
}

// AddField sets the offending field name
func (e *ValidationError) AddField(field string) *ValidationError {
	e.Field = field
	return e
}

// ToHTTPError converts the error for transport
func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).
		AddMetaValue("collection", e.Collection).
		AddMetaValue("index", e.Index).
		AddMetaValue("field", e.Field)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsValidationError reports whether err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// ToHTTPError converts matching errors for transport and leaves other errors untouched
func ToHTTPError(err error) error {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.ToHTTPError()
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.ToHTTPError()
	}
	return err
}
