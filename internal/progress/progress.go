// Package progress implements the ProgressSink collaborator (spec §6.1):
// a best-effort, never-blocking event channel the sync engine reports to.
// Rendering the events is explicitly out of scope (spec §1); this package
// only carries them.
package progress

import "github.com/rs/zerolog"

// EventKind enumerates the event shapes the sync engine emits.
type EventKind string

const (
	EventCollectFiles EventKind = "collect_files"
	EventIndexFile    EventKind = "index_file"
	EventCompleted    EventKind = "completed"
	EventError        EventKind = "error"
)

// Event is a single progress report. Only the fields relevant to Kind are
// populated; the rest are zero.
type Event struct {
	Kind    EventKind
	Repo    string
	Branch  string
	Total   int
	Current int
	Path    string
	Rate    float64 // files/sec, IndexFile only; the sync engine leaves it zero
	Message string
}

// Sink is the narrow contract the sync engine reports to. Report must
// never block the producer (spec §4.6).
type Sink interface {
	Report(Event)
}

// NopSink discards every event. Useful as a default when the caller has no
// progress UI wired up.
type NopSink struct{}

func (NopSink) Report(Event) {}

// ChannelSink is a bounded channel with a drop-oldest overflow policy
// (spec §9's "message passing to a bounded channel with drop-oldest policy
// on overflow; never block the producer"). The consumer reads Events().
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a sink buffering up to capacity events.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity <= 0 {
		capacity = 64
	}
	return &ChannelSink{events: make(chan Event, capacity)}
}

// Report never blocks: if the channel is full, the oldest buffered event
// is dropped to make room for the new one.
func (s *ChannelSink) Report(e Event) {
	for {
		select {
		case s.events <- e:
			return
		default:
		}
		select {
		case <-s.events:
		default:
			// Channel drained concurrently by the consumer; retry the send.
		}
	}
}

// Events returns the receive-only channel consumers should range over.
func (s *ChannelSink) Events() <-chan Event { return s.events }

// Close closes the underlying channel. Callers must stop calling Report
// after Close.
func (s *ChannelSink) Close() { close(s.events) }

// LogSink renders events directly to a zerolog.Logger, for CLI binaries
// that want progress visibility without standing up a consumer goroutine
// to drain a ChannelSink.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink wraps log as a Sink.
func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log}
}

func (s LogSink) Report(e Event) {
	ev := s.log.Info().Str("repo", e.Repo)
	if e.Branch != "" {
		ev = ev.Str("branch", e.Branch)
	}
	switch e.Kind {
	case EventCollectFiles:
		ev.Int("total", e.Total).Msg("collected files")
	case EventIndexFile:
		ev.Int("current", e.Current).Int("total", e.Total).Str("path", e.Path).Msg("indexed file")
	case EventCompleted:
		ev.Str("message", e.Message).Msg("sync completed")
	case EventError:
		s.log.Error().Str("repo", e.Repo).Str("message", e.Message).Msg("sync error")
	}
}
