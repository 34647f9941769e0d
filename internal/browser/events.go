package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"vrpilot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// EventKind classifies a browser event.
type EventKind string

const (
	EventNavigation EventKind = "navigation"
	EventConsole    EventKind = "console"
	EventException  EventKind = "exception"
	EventHTTPError  EventKind = "http_error"
)

// Event is a notable thing that happened in a page.
type Event struct {
	Page    string    `json:"page"`
	Kind    EventKind `json:"kind"`
	URL     string    `json:"url,omitempty"`
	Level   string    `json:"level,omitempty"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// EventSink receives page events.
type EventSink interface {
	Record(ev Event)
}

// EventLog keeps the most recent events in memory. They are written next
// to the failure screenshot so a broken run can be diagnosed offline.
type EventLog struct {
	mu     sync.Mutex
	max    int
	events []Event
}

// NewEventLog returns a log holding at most max events.
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = 200
	}
	return &EventLog{max: max}
}

func (l *EventLog) Record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if len(l.events) > l.max {
		l.events = l.events[len(l.events)-l.max:]
	}
}

// Events returns a copy of the recorded events, oldest first.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// eventThrottler drops repeats of the same key inside an interval. A nil
// throttler lets everything through.
type eventThrottler struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[string]time.Time
}

func newEventThrottler(ms int) *eventThrottler {
	if ms <= 0 {
		return nil
	}
	return &eventThrottler{
		interval: time.Duration(ms) * time.Millisecond,
		last:     make(map[string]time.Time),
	}
}

func (t *eventThrottler) Allow(key string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}

func (m *Manager) emit(ev Event) {
	switch ev.Kind {
	case EventNavigation:
		logging.BrowserDebug("[%s] navigated to %s", ev.Page, ev.URL)
	case EventHTTPError:
		logging.Get(logging.CategoryBrowser).Warn("[%s] HTTP %d %s", ev.Page, ev.Status, ev.URL)
	default:
		logging.Get(logging.CategoryBrowser).Warn("[%s] %s %s: %s", ev.Page, ev.Kind, ev.Level, ev.Message)
	}
	if m.sink != nil {
		m.sink.Record(ev)
	}
}

// startEventStream wires CDP events into the log and the sink until ctx
// is cancelled.
func (m *Manager) startEventStream(ctx context.Context, pageID string, page *rod.Page) {
	throttler := newEventThrottler(m.cfg.EventThrottleMs)

	wait := page.Context(ctx).EachEvent(
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame == nil || ev.Frame.ParentID != "" {
				return
			}
			now := time.Now()
			m.emit(Event{Page: pageID, Kind: EventNavigation, URL: ev.Frame.URL, At: now})
			m.navigated(pageID, ev.Frame.URL, now)
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			if ev.Type != proto.RuntimeConsoleAPICalledTypeError && ev.Type != proto.RuntimeConsoleAPICalledTypeWarning {
				return
			}
			if !throttler.Allow("console") {
				return
			}
			m.emit(Event{
				Page:    pageID,
				Kind:    EventConsole,
				Level:   string(ev.Type),
				Message: stringifyConsoleArgs(ev.Args),
				At:      time.Now(),
			})
		},
		func(ev *proto.RuntimeExceptionThrown) {
			if ev.ExceptionDetails == nil {
				return
			}
			msg := ev.ExceptionDetails.Text
			if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
				msg = ev.ExceptionDetails.Exception.Description
			}
			m.emit(Event{Page: pageID, Kind: EventException, URL: ev.ExceptionDetails.URL, Message: msg, At: time.Now()})
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil || ev.Response.Status < 400 || isInternalScript(ev.Response.URL) {
				return
			}
			if !throttler.Allow("http:" + ev.Response.URL) {
				return
			}
			m.emit(Event{
				Page:    pageID,
				Kind:    EventHTTPError,
				URL:     ev.Response.URL,
				Status:  ev.Response.Status,
				Message: ev.Response.StatusText,
				At:      time.Now(),
			})
		},
	)
	go wait()
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func isInternalScript(url string) bool {
	internalPrefixes := []string{
		"chrome://",
		"chrome-extension://",
		"devtools://",
		"about:",
		"data:",
		"blob:",
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
