// Package streamerr implements the error taxonomy from spec.md §7: a single
// StreamError type whose Kind field names the failure kind, wrapping an
// optional cause. The pattern (Op + wrapped Err, Unwrap, one constructor
// and one errors.As-based classifier per kind) follows alxayo-rtmp-go's internal/errors
// package; the kinds themselves are the ones spec.md §7 enumerates.
package streamerr

import (
	"errors"
	"fmt"
)

// kind identifies which row of the §7 taxonomy an error belongs to.
type kind int

const (
	kindTransientWire kind = iota
	kindIncompleteFrame
	kindFEC
	kindFormatMismatch
	kindModeMismatch
	kindResourceExhaustion
	kindFatal
)

func (k kind) String() string {
	switch k {
	case kindTransientWire:
		return "transient-wire"
	case kindIncompleteFrame:
		return "incomplete-frame"
	case kindFEC:
		return "fec"
	case kindFormatMismatch:
		return "format-mismatch"
	case kindModeMismatch:
		return "mode-mismatch"
	case kindResourceExhaustion:
		return "resource-exhaustion"
	case kindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StreamError is the concrete error type for every kind in the taxonomy.
// SSRC, Timestamp and Substream are filled in where known so that callers
// (the per-participant counters in internal/participant) can attribute the
// failure without re-parsing the error string.
type StreamError struct {
	Kind      kind
	Op        string
	SSRC      uint32
	Timestamp uint32
	Substream int
	Err       error
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

func newErr(k kind, op string, cause error) *StreamError {
	return &StreamError{Kind: k, Op: op, Err: cause}
}

// Constructors. WithSSRC/WithTimestamp/WithSubstream return a copy with the
// field populated, so callers can chain: streamerr.Transient("bad header", err).WithSSRC(ssrc)

func Transient(op string, cause error) *StreamError {
	return newErr(kindTransientWire, op, cause)
}

func IncompleteFrame(op string, cause error) *StreamError {
	return newErr(kindIncompleteFrame, op, cause)
}

func FEC(op string, cause error) *StreamError {
	return newErr(kindFEC, op, cause)
}

func FormatMismatch(op string, cause error) *StreamError {
	return newErr(kindFormatMismatch, op, cause)
}

func ModeMismatch(op string, cause error) *StreamError {
	return newErr(kindModeMismatch, op, cause)
}

func ResourceExhaustion(op string, cause error) *StreamError {
	return newErr(kindResourceExhaustion, op, cause)
}

func Fatal(op string, cause error) *StreamError {
	return newErr(kindFatal, op, cause)
}

func (e *StreamError) WithSSRC(ssrc uint32) *StreamError {
	c := *e
	c.SSRC = ssrc
	return &c
}

func (e *StreamError) WithTimestamp(ts uint32) *StreamError {
	c := *e
	c.Timestamp = ts
	return &c
}

func (e *StreamError) WithSubstream(sub int) *StreamError {
	c := *e
	c.Substream = sub
	return &c
}

// classify reports whether err's chain contains a *StreamError of kind k.
func classify(err error, k kind) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}

func IsTransient(err error) bool           { return classify(err, kindTransientWire) }
func IsIncompleteFrame(err error) bool      { return classify(err, kindIncompleteFrame) }
func IsFEC(err error) bool                  { return classify(err, kindFEC) }
func IsFormatMismatch(err error) bool       { return classify(err, kindFormatMismatch) }
func IsModeMismatch(err error) bool         { return classify(err, kindModeMismatch) }
func IsResourceExhaustion(err error) bool   { return classify(err, kindResourceExhaustion) }
func IsFatal(err error) bool                { return classify(err, kindFatal) }
