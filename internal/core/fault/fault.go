// Package fault defines the error kinds returned by the query core and how
// they map onto client or server responsibility.
package fault

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Kind int

const (
	// DataSource is the zero value so that unclassified errors are treated as server faults.
	DataSource Kind = iota
	Validation
	Range
	ArityMismatch
	CatalogUnavailable
)

var kindNames = map[Kind]string{
	DataSource:         "data_source",
	Validation:         "validation",
	Range:              "range",
	ArityMismatch:      "arity_mismatch",
	CatalogUnavailable: "catalog_unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ClientFault reports whether the caller can fix the request.
func (k Kind) ClientFault() bool {
	switch k {
	case Validation, Range, ArityMismatch:
		return true
	default:
		return false
	}
}

func (k Kind) HTTPStatus() int {
	switch k {
	case Validation, ArityMismatch:
		return http.StatusBadRequest
	case Range:
		return http.StatusNotFound
	case CatalogUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	// Missing and Invalid are only populated for Validation errors.
	Missing []string
	Invalid map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing: %s)", strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Invalid[k])
		}
		fmt.Fprintf(&b, " (invalid: %s)", strings.Join(parts, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, &Error{Kind: Range}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func Validationf(missing []string, invalid map[string]string) *Error {
	msg := "invalid query parameters"
	if len(invalid) == 0 {
		msg = "missing required parameters"
	}
	return &Error{Kind: Validation, Message: msg, Missing: missing, Invalid: invalid}
}

func Rangef(format string, args ...any) *Error {
	return &Error{Kind: Range, Message: fmt.Sprintf(format, args...)}
}

func Arityf(format string, args ...any) *Error {
	return &Error{Kind: ArityMismatch, Message: fmt.Sprintf(format, args...)}
}

func DataSourceErr(msg string, err error) *Error {
	return &Error{Kind: DataSource, Message: msg, Err: err}
}

func Unavailable(msg string, err error) *Error {
	return &Error{Kind: CatalogUnavailable, Message: msg, Err: err}
}

// KindOf classifies any error. Errors that carry no kind are DataSource.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return DataSource
}

func Is(err error, k Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == k
}
