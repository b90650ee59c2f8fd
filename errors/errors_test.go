package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"handshake timeout", ErrHandshakeTimeout, true},
		{"directory unavailable", ErrUnavailable, true},
		{"rate limited", ErrRateLimited, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"invalid data", ErrInvalidData, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"closed client", ErrClosed, true},
		{"context canceled", context.Canceled, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsFatal(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"parsing failed", ErrParsingFailed, true},
		{"invalid argument", ErrInvalidArgument, true},
		{"unknown network", ErrUnknownNetwork, true},
		{"not connected", ErrNotConnected, true},
		{"empty cache", ErrEmptyCache, true},
		{"connection lost", ErrConnectionLost, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsInvalid(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"not connected", ErrNotConnected, ErrorInvalid},
		{"wrapped not connected", Wrap(ErrNotConnected, "Client", "Subscribe", "send frame"), ErrorInvalid},
		{"closed", ErrClosed, ErrorFatal},
		{"unknown", errors.New("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %s, got %s", test.expected, got)
			}
		})
	}
}

func TestClassifiedError(t *testing.T) {
	base := errors.New("base error")
	ce := &ClassifiedError{
		Class:     ErrorTransient,
		Err:       base,
		Message:   "custom message",
		Component: "Directory",
		Operation: "Refresh",
	}

	if ce.Error() != "custom message" {
		t.Errorf("expected custom message, got %s", ce.Error())
	}
	if !errors.Is(ce, base) {
		t.Error("expected classified error to unwrap to base error")
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	base := errors.New("base error")
	ce := &ClassifiedError{Class: ErrorFatal, Err: base}

	if ce.Error() != "base error" {
		t.Errorf("expected base error message, got %s", ce.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "C", "M", "a") != nil {
		t.Error("expected nil for nil error")
	}

	err := Wrap(ErrEmptyCache, "Directory", "PickOne", "select node")
	expected := "Directory.PickOne: select node failed: api nodes cache empty"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrEmptyCache) {
		t.Error("expected wrapped error to match ErrEmptyCache")
	}
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("dial tcp: refused")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.wrap(nil, "C", "M", "a") != nil {
				t.Fatal("expected nil for nil error")
			}

			err := test.wrap(base, "Client", "Connect", "dial")
			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatal("expected ClassifiedError")
			}
			if ce.Class != test.class {
				t.Errorf("expected class %s, got %s", test.class, ce.Class)
			}
			if ce.Component != "Client" || ce.Operation != "Connect" {
				t.Errorf("unexpected component/operation: %s/%s", ce.Component, ce.Operation)
			}
			if !strings.HasPrefix(err.Error(), "Client.Connect: dial failed") {
				t.Errorf("unexpected message: %s", err.Error())
			}
			if !errors.Is(err, base) {
				t.Error("expected chain to contain base error")
			}
		})
	}
}
