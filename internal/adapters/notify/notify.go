// Package notify delivers user-facing messages such as "could not load
// more items". The default implementation writes them to the log.
package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/okian/pitch/pkg/logger"
	"github.com/okian/pitch/pkg/metrics"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity maps free-form input to a Severity, defaulting to info.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeveritySuccess:
		return SeveritySuccess
	case SeverityWarning, "warn":
		return SeverityWarning
	case SeverityError:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string, severity Severity)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses the global one.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Get().Named("notify")
	}
	return &LogNotifier{logger: l}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, message string, severity Severity) {
	metrics.RecordNotification(string(severity))
	fields := []logger.Field{logger.String("severity", string(severity))}
	switch severity {
	case SeverityError:
		n.logger.Error(ctx, message, fields...)
	case SeverityWarning:
		n.logger.Warn(ctx, message, fields...)
	default:
		n.logger.Info(ctx, message, fields...)
	}
}

// Message is a delivered notification.
type Message struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
}

// Recorder keeps the most recent notifications in memory and forwards
// them to an optional next Notifier.
type Recorder struct {
	mu    sync.Mutex
	msgs  []Message
	limit int
	next  Notifier
}

// NewRecorder creates a Recorder keeping at most limit messages.
func NewRecorder(limit int, next Notifier) *Recorder {
	if limit < 1 {
		limit = 50
	}
	return &Recorder{limit: limit, next: next}
}

// Notify implements Notifier.
func (r *Recorder) Notify(ctx context.Context, message string, severity Severity) {
	r.mu.Lock()
	r.msgs = append(r.msgs, Message{Text: message, Severity: severity})
	if over := len(r.msgs) - r.limit; over > 0 {
		r.msgs = append(r.msgs[:0:0], r.msgs[over:]...)
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.Notify(ctx, message, severity)
	} else {
		metrics.RecordNotification(string(severity))
	}
}

// Messages returns a copy of the retained notifications, oldest first.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}
