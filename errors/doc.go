// Package errors provides standardized error handling for the DVL bridge.
//
// # Overview
//
// Errors fall into three classes that drive recovery decisions:
//
//   - Transient: the sensor is not reachable yet, the link flapped, NATS is reconnecting.
//     Retried or absorbed; never stops the publish loop.
//   - Invalid: a frame that is not JSON, or a velocity record with a missing or
//     mistyped field. The single offending frame is skipped.
//   - Fatal: the sensor address cannot be parsed, or the process cannot allocate a
//     socket at all. The bridge shuts down.
//
// # Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Use the class-aware wrappers when the caller decides the class:
//
//	errors.WrapTransient(err, "TCPConnector", "Connect", "dial sensor")
//	errors.WrapInvalid(err, "Config", "Validate", "sensor port")
//	errors.WrapFatal(err, "TCPConnector", "Connect", "resolve sensor address")
//
// The generic Wrap keeps whatever class the wrapped error already carries.
//
// # Classification
//
// IsTransient, IsFatal and IsInvalid inspect ClassifiedError values first, then the
// standard error variables, then well-known message fragments. A ClassifiedError is
// always authoritative:
//
//	if errors.IsFatal(err) {
//	    return err // stop the loop, the process exits
//	}
package errors
