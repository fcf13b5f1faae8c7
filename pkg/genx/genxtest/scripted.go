// Package genxtest provides a scripted genx.Endpoint for tests.
package genxtest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/haivivi/autoppa/pkg/chat"
	"github.com/haivivi/autoppa/pkg/genx"
)

var _ genx.Endpoint = (*Scripted)(nil)

// Script is the replay of one endpoint call.
type Script struct {
	// OpenErr is returned by Stream instead of a stream.
	OpenErr error

	// Events are returned by Next in order.
	Events []genx.Event

	// Err is returned by Next after the events instead of io.EOF.
	Err error
}

// Reply scripts a successful generation of fragments whose completion event
// reports outputTokens.
func Reply(outputTokens int64, fragments ...string) Script {
	s := Script{}
	for _, f := range fragments {
		s.Events = append(s.Events, genx.TextDelta(f))
	}
	s.Events = append(s.Events, genx.Completed(genx.Usage{OutputTokens: outputTokens}))
	return s
}

// Scripted replays one Script per Stream call, in order.
type Scripted struct {
	mu      sync.Mutex
	scripts []Script
	calls   [][]chat.Message
	streams []*Stream
}

// New returns a Scripted endpoint that replays scripts.
func New(scripts ...Script) *Scripted {
	return &Scripted{scripts: scripts}
}

// Push appends more scripts.
func (s *Scripted) Push(scripts ...Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, scripts...)
}

func (s *Scripted) Stream(ctx context.Context, msgs []chat.Message) (genx.EventStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]chat.Message(nil), msgs...))
	if len(s.scripts) == 0 {
		return nil, errors.New("genxtest: no script left")
	}
	sc := s.scripts[0]
	s.scripts = s.scripts[1:]
	if sc.OpenErr != nil {
		return nil, sc.OpenErr
	}
	st := &Stream{script: sc}
	s.streams = append(s.streams, st)
	return st, nil
}

// Calls returns the message sequences passed to Stream.
func (s *Scripted) Calls() [][]chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]chat.Message(nil), s.calls...)
}

// Streams returns the streams opened so far.
func (s *Scripted) Streams() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Stream(nil), s.streams...)
}

// Stream is a replaying genx.EventStream.
type Stream struct {
	mu     sync.Mutex
	script Script
	pos    int
	closed bool
}

func (st *Stream) Next() (genx.Event, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return genx.Event{}, errors.New("genxtest: stream closed")
	}
	if st.pos < len(st.script.Events) {
		ev := st.script.Events[st.pos]
		st.pos++
		return ev, nil
	}
	if st.script.Err != nil {
		return genx.Event{}, st.script.Err
	}
	return genx.Event{}, io.EOF
}

func (st *Stream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.closed = true
	return nil
}

// Closed reports whether Close was called.
func (st *Stream) Closed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.closed
}

// Consumed returns how many events were read.
func (st *Stream) Consumed() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pos
}
