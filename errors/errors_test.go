package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
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
		{"sensor unreachable", ErrSensorUnreachable, true},
		{"stream closed", ErrStreamClosed, true},
		{"context canceled", context.Canceled, true},
		{"malformed frame", ErrMalformedFrame, false},
		{"resource exhausted", ErrResourceExhausted, false},
		{"no route in message", fmt.Errorf("dial tcp 10.42.0.186:16171: connect: no route to host"), true},
		{"refused wrapped", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("connection")}, false},
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
		{"resource exhausted", ErrResourceExhausted, true},
		{"descriptor exhaustion", fmt.Errorf("socket: %w", syscall.EMFILE), true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"invalid field", ErrInvalidField, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("fatal")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
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
		{"malformed frame", ErrMalformedFrame, true},
		{"invalid field", fmt.Errorf("vx: %w", ErrInvalidField), true},
		{"parsing failed", ErrParsingFailed, true},
		{"connection lost", ErrConnectionLost, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: ErrInvalidData}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
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
		{"stream closed", ErrStreamClosed, ErrorTransient},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"malformed frame", ErrMalformedFrame, ErrorInvalid},
		{"unknown", fmt.Errorf("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorInvalid, Err: ErrMalformedFrame}
	if ce.Error() != ErrMalformedFrame.Error() {
		t.Errorf("expected underlying message, got %q", ce.Error())
	}
	if !errors.Is(ce, ErrMalformedFrame) {
		t.Error("expected Unwrap to expose the underlying error")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "C", "M", "a") != nil {
		t.Error("wrapping nil must return nil")
	}

	err := Wrap(ErrConnectionLost, "FrameReader", "NextFrame", "read sensor")
	expected := "FrameReader.NextFrame: read sensor failed: connection lost"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrConnectionLost) {
		t.Error("expected wrapped error to match ErrConnectionLost")
	}
}

func TestWrapClassified(t *testing.T) {
	base := fmt.Errorf("boom")

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
				t.Fatal("wrapping nil must return nil")
			}

			err := test.wrap(base, "TCPConnector", "Connect", "dial")
			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ClassifiedError, got %T", err)
			}
			if ce.Class != test.class {
				t.Errorf("expected class %v, got %v", test.class, ce.Class)
			}
			if ce.Component != "TCPConnector" || ce.Operation != "Connect" {
				t.Errorf("unexpected context %s.%s", ce.Component, ce.Operation)
			}
			if !strings.HasPrefix(err.Error(), "TCPConnector.Connect: dial failed") {
				t.Errorf("unexpected message %q", err.Error())
			}
			if !errors.Is(err, base) {
				t.Error("expected chain to contain base error")
			}
			if Classify(err) != test.class {
				t.Errorf("Classify disagrees: %v", Classify(err))
			}
		})
	}
}

func TestWrapPreservesClass(t *testing.T) {
	inner := WrapFatal(ErrResourceExhausted, "TCPConnector", "Connect", "open socket")
	outer := Wrap(inner, "Input", "run", "connect sensor")

	if !IsFatal(outer) {
		t.Errorf("expected outer error to stay fatal: %v", outer)
	}
}

func BenchmarkClassify(b *testing.B) {
	err := Wrap(ErrStreamClosed, "FrameReader", "NextFrame", "read")
	for i := 0; i < b.N; i++ {
		_ = Classify(err)
	}
}
