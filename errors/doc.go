// Package errors provides standardized error handling patterns for gofhem.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, a later attempt may succeed), Invalid (bad input or
// configuration, do not retry), and Fatal (the current connection attempt is
// over). The classes map onto the failure kinds a FHEM client encounters:
//
//   - Connection errors (cannot reach, handshake, or authenticate) are Fatal
//     for the attempt: ErrConnectionFailed, ErrAuthenticationFailed,
//     ErrCSRFTokenNotFound. They are never retried automatically.
//   - Transport errors on an established connection are Transient:
//     ErrConnectionLost, ErrNotConnected, ErrConnectionTimeout. The event
//     listener terminates its loop on these; a new listener may succeed.
//   - Parse errors are Invalid: ErrParsingFailed. Callers log and skip the
//     offending payload; the listener never terminates on one.
//   - A timeout on the synchronous path is not an error at all; operations
//     return an empty result, and single-record getters return ErrNoResult
//     so callers can distinguish "nothing matched" from a real value.
//
// The classification integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if !t.Connected() {
//	    return errors.ErrNotConnected
//	}
//
// Wrap errors with context for debugging:
//
//	if err := json.Unmarshal(data, &list); err != nil {
//	    return errors.WrapInvalid(err, "Parser", "ParseList", "decode jsonlist2")
//	}
//
// Check classification to decide what to do next:
//
//	if err := q.Start(ctx); err != nil {
//	    if errors.IsInvalid(err) {
//	        // configuration problem, fix and reconstruct
//	    } else if errors.IsFatal(err) {
//	        // server unreachable or credentials rejected
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and debugging across the
// library. Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Telnet", "Receive", "read")
//	errors.WrapInvalid(err, "Config", "Validate", "check protocol")
//	errors.WrapFatal(err, "Telnet", "Connect", "dial")
//
// The generic Wrap() adds context without assigning a class, preserving
// the classification of the wrapped error.
package errors
