package llm

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a deterministic Generator that replays canned responses per
// purpose. When a purpose's queue is empty, Fallback is used. It backs dry
// runs and tests.
type Scripted struct {
	Fallback func(Request) (string, error)

	mu     sync.Mutex
	queues map[Purpose][]string
	calls  []Request
}

// Push queues responses for a purpose. They are consumed in order.
func (s *Scripted) Push(p Purpose, texts ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queues == nil {
		s.queues = make(map[Purpose][]string)
	}
	s.queues[p] = append(s.queues[p], texts...)
}

// Calls returns a copy of every request received so far.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// Generate returns the next queued response for req.Purpose.
func (s *Scripted) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	var text string
	q := s.queues[req.Purpose]
	found := len(q) > 0
	if found {
		text = q[0]
		s.queues[req.Purpose] = q[1:]
	}
	s.mu.Unlock()

	if !found {
		if s.Fallback == nil {
			return Response{}, Fatal(req.Purpose, fmt.Errorf("no scripted response"))
		}
		var err error
		if text, err = s.Fallback(req); err != nil {
			return Response{}, err
		}
	}
	return Response{
		Text:  text,
		Usage: Usage{TokensIn: len(req.Prompt) / 4, TokensOut: len(text) / 4},
	}, nil
}
