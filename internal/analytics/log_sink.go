package analytics

import (
	"log/slog"
	"sort"

	"feedplay/internal/logging"
)

// LogSink mirrors events to a structured logger at info level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink writing through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "analytics")}
}

// LogEvent writes one log line per event.
func (s *LogSink) LogEvent(e Event) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(e.Type)),
		logging.String(logging.FieldVideoID, e.VideoID),
	}
	if e.PostID != "" {
		attrs = append(attrs, logging.String(logging.FieldPostID, e.PostID))
	}
	if e.SessionID != "" {
		attrs = append(attrs, logging.String(logging.FieldSessionID, e.SessionID))
	}
	keys := make([]string, 0, len(e.Metadata))
	for key := range e.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attrs = append(attrs, logging.Any(key, e.Metadata[key]))
	}
	s.logger.Info("analytics event", logging.Args(attrs...)...)
}
