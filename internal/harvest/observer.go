package harvest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-harvester/internal/domain"
)

// Observer receives progress and milestone notifications from a run.
// Calls are serialized by the caller; implementations need not lock.
type Observer interface {
	// OnProgress reports processed of total records settled after elapsed time.
	OnProgress(processed, total int, elapsed time.Duration)

	// OnMessage reports a human-readable milestone.
	OnMessage(text string, sev domain.Severity)
}

// StatusObserver is optionally implemented by observers that track the run
// lifecycle.
type StatusObserver interface {
	OnStatus(status domain.RunStatus)
}

// NopObserver discards all notifications.
type NopObserver struct{}

// OnProgress implements Observer.
func (NopObserver) OnProgress(int, int, time.Duration) {}

// OnMessage implements Observer.
func (NopObserver) OnMessage(string, domain.Severity) {}

// MultiObserver fans notifications out to every member in order.
type MultiObserver []Observer

// OnProgress implements Observer.
func (m MultiObserver) OnProgress(processed, total int, elapsed time.Duration) {
	for _, o := range m {
		o.OnProgress(processed, total, elapsed)
	}
}

// OnMessage implements Observer.
func (m MultiObserver) OnMessage(text string, sev domain.Severity) {
	for _, o := range m {
		o.OnMessage(text, sev)
	}
}

// OnStatus implements StatusObserver for members that support it.
func (m MultiObserver) OnStatus(status domain.RunStatus) {
	for _, o := range m {
		if so, ok := o.(StatusObserver); ok {
			so.OnStatus(status)
		}
	}
}

// LogObserver writes notifications to a zerolog logger. Progress is logged at
// debug level, milestones at the level matching their severity.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnProgress implements Observer.
func (o *LogObserver) OnProgress(processed, total int, elapsed time.Duration) {
	o.logger.Debug().
		Int("processed", processed).
		Int("total", total).
		Int("percent", Percent(processed, total)).
		Dur("elapsed", elapsed).
		Msg("fetch progress")
}

// OnMessage implements Observer.
func (o *LogObserver) OnMessage(text string, sev domain.Severity) {
	var event *zerolog.Event
	switch sev {
	case domain.SeverityError:
		event = o.logger.Error()
	case domain.SeverityWarning:
		event = o.logger.Warn()
	default:
		event = o.logger.Info()
	}
	event.Str("severity", string(sev)).Msg(text)
}

// OnStatus implements StatusObserver.
func (o *LogObserver) OnStatus(status domain.RunStatus) {
	o.logger.Info().Str("status", string(status)).Msg("run status changed")
}

// Percent returns processed/total as a whole percentage capped at 100.
func Percent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	p := (processed*100 + total/2) / total
	if p > 100 {
		return 100
	}
	return p
}

// FormatElapsed renders a duration as "<minutes>m <seconds>s".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
