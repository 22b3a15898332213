// Package apperr defines the error taxonomy shared by the recommendation
// engine. Every hard failure is an *Error carrying its kind, the component
// that raised it and, where relevant, the dependency that failed, so callers
// can tell a transient outage from missing data or bad configuration.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrDataIntegrity         = errors.New("data integrity error")
	ErrExternalService       = errors.New("external service error")
	ErrRequestTimeout        = errors.New("request timeout")
	// ErrCache is soft: it is logged and counted, never returned from recommend.
	ErrCache = errors.New("cache error")
)

// Dependency names used in error context and metrics labels.
const (
	DependencyPostgres  = "postgres"
	DependencyNeo4j     = "neo4j"
	DependencyRedis     = "redis"
	DependencyEmbedding = "embedding"
	DependencyLLM       = "llm"
	DependencyKafka     = "kafka"
)

type Error struct {
	Kind       error
	Component  string
	Dependency string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Component != "" {
		b.WriteString(" in ")
		b.WriteString(e.Component)
	}
	if e.Dependency != "" {
		b.WriteString(" (")
		b.WriteString(e.Dependency)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Configuration(component, format string, args ...any) *Error {
	return &Error{Kind: ErrConfiguration, Component: component, Message: fmt.Sprintf(format, args...)}
}

func DependencyUnavailable(component, dependency string, err error) *Error {
	return &Error{Kind: ErrDependencyUnavailable, Component: component, Dependency: dependency, Err: err}
}

func DataIntegrity(component, format string, args ...any) *Error {
	return &Error{Kind: ErrDataIntegrity, Component: component, Message: fmt.Sprintf(format, args...)}
}

func ExternalService(component, dependency, message string, err error) *Error {
	return &Error{Kind: ErrExternalService, Component: component, Dependency: dependency, Message: message, Err: err}
}

func RequestTimeout(component string, err error) *Error {
	return &Error{Kind: ErrRequestTimeout, Component: component, Err: err}
}

func Cache(component, message string, err error) *Error {
	return &Error{Kind: ErrCache, Component: component, Dependency: DependencyRedis, Message: message, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
