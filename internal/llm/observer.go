package llm

import (
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/utils"
)

// Event describes one step of an invocation as seen by an Observer.
type Event struct {
	Provider    string
	Model       string
	Attempt     int
	MaxAttempts int
	// Duration is the time spent in the backend call for attempt events and
	// the whole invocation for finished events.
	Duration time.Duration
	// Delay is the backoff before the next attempt for retry events.
	Delay    time.Duration
	Err      error
	Reason   Reason
	Recovery Recovery
	Raw      string
}

// Observer receives invocation events. Implementations must be safe for
// concurrent use since a single Invoker serves parallel callers.
type Observer interface {
	AttemptFinished(Event)
	RetryScheduled(Event)
	Finished(Event)
}

// Observers fans events out to every observer in the list.
type Observers []Observer

func (o Observers) AttemptFinished(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.AttemptFinished(ev)
		}
	}
}

func (o Observers) RetryScheduled(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.RetryScheduled(ev)
		}
	}
}

func (o Observers) Finished(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Finished(ev)
		}
	}
}

// LogObserver writes invocation events to a zap logger.
type LogObserver struct {
	logger    *zap.Logger
	maxLogLen int
}

const defaultMaxLogLength = 200

// NewLogObserver creates an observer that logs through the provided logger.
// Raw responses are truncated to maxLogLength runes.
func NewLogObserver(l *zap.Logger, maxLogLength int) *LogObserver {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &LogObserver{logger: logger.WithFields(l), maxLogLen: maxLogLength}
}

func (o *LogObserver) AttemptFinished(ev Event) {
	fields := o.fields(ev)
	fields = append(fields, zap.Duration("duration", ev.Duration))
	if ev.Err != nil {
		o.logger.Warn("llm attempt failed", append(fields, zap.Error(ev.Err))...)
		return
	}
	o.logger.Debug("llm attempt succeeded", append(fields,
		zap.Int("response_length", utf8.RuneCountInString(ev.Raw)),
		zap.String("response_preview", utils.TruncateForLog(ev.Raw, o.maxLogLen)),
	)...)
}

func (o *LogObserver) RetryScheduled(ev Event) {
	o.logger.Info("retrying llm call", append(o.fields(ev),
		zap.Duration("delay", ev.Delay),
		zap.Error(ev.Err),
	)...)
}

func (o *LogObserver) Finished(ev Event) {
	fields := append(o.fields(ev), zap.Duration("duration", ev.Duration))
	if ev.Reason != "" {
		o.logger.Error("llm invocation failed", append(fields,
			zap.String("reason", string(ev.Reason)),
			zap.String("response_preview", utils.TruncateForLog(ev.Raw, o.maxLogLen)),
			zap.Error(ev.Err),
		)...)
		return
	}
	if ev.Recovery == RecoveryBraceScan {
		o.logger.Warn("recovered json embedded in prose", fields...)
	}
	o.logger.Debug("llm invocation succeeded", append(fields, zap.String("recovery", string(ev.Recovery)))...)
}

func (o *LogObserver) fields(ev Event) []zap.Field {
	fields := logger.CommonFields(ev.Provider, ev.Model)
	return append(fields,
		zap.Int("attempt", ev.Attempt),
		zap.Int("max_attempts", ev.MaxAttempts),
	)
}
