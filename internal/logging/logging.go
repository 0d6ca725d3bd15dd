// Package logging provides the ambient leveled-logger factory used across
// the streaming engine. It follows the github.com/pion/logging
// LeveledLogger / LoggerFactory pattern used by Azunyan1111-interceptor's
// ReceiverInterceptor, rather than rolling a bespoke logging layer.
package logging

import (
	"sync"

	"github.com/pion/logging"
)

var (
	factoryOnce sync.Once
	factory     logging.LoggerFactory
)

// Factory returns the process-wide logger factory, initializing it to
// pion/logging's default (leveled, writes to stdout/stderr by severity) on
// first use. cmd/ entrypoints may call SetFactory before any component
// calls Factory to override this.
func Factory() logging.LoggerFactory {
	factoryOnce.Do(func() {
		if factory == nil {
			factory = logging.NewDefaultLoggerFactory()
		}
	})
	return factory
}

// SetFactory overrides the process-wide logger factory. Must be called
// before any component calls Factory; intended for cmd/ main() only.
func SetFactory(f logging.LoggerFactory) {
	factory = f
}

// ForParticipant returns a logger scoped to a participant's SSRC. Since
// pion/logging's LeveledLogger has no structured-field API, scoping is done
// by name: every log line this logger emits is prefixed with the scope
// name by the underlying DefaultLeveledLogger.
func ForParticipant(ssrc uint32) logging.LeveledLogger {
	return Factory().NewLogger(participantScope(ssrc))
}

// ForComponent returns a logger scoped to a named pipeline component
// (e.g. "ring", "reassembly", "display").
func ForComponent(name string) logging.LeveledLogger {
	return Factory().NewLogger(name)
}

func participantScope(ssrc uint32) string {
	return "participant-" + uitoa(ssrc)
}

func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
