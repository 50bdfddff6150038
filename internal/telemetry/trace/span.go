package trace

import (
	"sync"
	"time"
)

// Kind classifies a span's position in a request flow.
type Kind int

const (
	KindInternal Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindProducer:
		return "producer"
	case KindConsumer:
		return "consumer"
	default:
		return "internal"
	}
}

// StatusCode is the final disposition of a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Status pairs a code with an optional message (set for errors).
type Status struct {
	Code    StatusCode
	Message string
}

// Attribute is a single key/scalar pair. Attribute order is preserved on the
// span record.
type Attribute struct {
	Key   string
	Value any
}

// String builds a string attribute.
func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

// Int builds an integer attribute.
func Int(key string, value int) Attribute { return Attribute{Key: key, Value: int64(value)} }

// Float64 builds a float attribute.
func Float64(key string, value float64) Attribute { return Attribute{Key: key, Value: value} }

// Bool builds a boolean attribute.
func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

// Event is a timestamped annotation within a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes []Attribute
}

// SpanData is the immutable record of a finished span, the shape handed to
// the pipeline and to exporters.
type SpanData struct {
	Context    SpanContext
	ParentID   SpanID // zero when the span is a trace root
	Name       string
	Kind       Kind
	Service    string
	StartTime  time.Time
	EndTime    time.Time
	Status     Status
	Attributes []Attribute
	Events     []Event
	Links      []SpanContext
}

// Root reports whether the span is a trace root.
func (d SpanData) Root() bool {
	return !d.ParentID.IsValid()
}

// Span is the handle callers mutate between Start and End. Mutation methods
// never fail and never panic; on an ended span they are silently ignored so
// callers may race with async completion handlers. Implementations are either
// recording or inert no-ops (when the sampling decision was "drop").
type Span interface {
	// Context returns the propagated identity of the span.
	Context() SpanContext
	// SetAttribute sets a key/scalar attribute, overwriting a previous value.
	SetAttribute(key string, value any)
	// AddEvent appends a timestamped annotation.
	AddEvent(name string, attrs ...Attribute)
	// RecordError annotates the span with err and sets error status. It has
	// no control-flow effect: the error keeps propagating through normal
	// return channels.
	RecordError(err error)
	// SetStatus sets the final status.
	SetStatus(code StatusCode, message string)
	// End finalizes the span and hands it to the sink. Idempotent.
	End()
	// IsRecording reports whether mutations are still being captured.
	IsRecording() bool
}

// recordingSpan is the live variant. A per-span mutex serializes writers:
// multiple producers are expected under async fan-out.
type recordingSpan struct {
	mu     sync.Mutex
	tracer *Tracer
	data   SpanData
	ended  bool
}

var _ Span = (*recordingSpan)(nil)

func (s *recordingSpan) Context() SpanContext {
	return s.data.Context
}

func (s *recordingSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	for i := range s.data.Attributes {
		if s.data.Attributes[i].Key == key {
			s.data.Attributes[i].Value = value
			return
		}
	}
	s.data.Attributes = append(s.data.Attributes, Attribute{Key: key, Value: value})
}

func (s *recordingSpan) AddEvent(name string, attrs ...Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.data.Events = append(s.data.Events, Event{Name: name, Time: time.Now(), Attributes: attrs})
}

func (s *recordingSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.data.Events = append(s.data.Events, Event{
		Name: "error",
		Time: time.Now(),
		Attributes: []Attribute{
			{Key: "error.message", Value: err.Error()},
		},
	})
	s.data.Status = Status{Code: StatusError, Message: err.Error()}
}

func (s *recordingSpan) SetStatus(code StatusCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.data.Status = Status{Code: code, Message: message}
}

func (s *recordingSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.data.EndTime = time.Now()
	// Status left unset stays unset; a clean end is not coerced to ok.
	data := s.data
	s.mu.Unlock()

	s.tracer.finish(data)
}

func (s *recordingSpan) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// noopSpan is the inert variant returned when the sampling decision was
// "drop" or when no span is present in a context. It still carries a span
// context so ids keep propagating downstream.
type noopSpan struct {
	sc SpanContext
}

var _ Span = noopSpan{}

func (n noopSpan) Context() SpanContext          { return n.sc }
func (n noopSpan) SetAttribute(string, any)      {}
func (n noopSpan) AddEvent(string, ...Attribute) {}
func (n noopSpan) RecordError(error)             {}
func (n noopSpan) SetStatus(StatusCode, string)  {}
func (n noopSpan) End()                          {}
func (n noopSpan) IsRecording() bool             { return false }
