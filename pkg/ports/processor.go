package ports

import (
	"context"
	"io"
	"sync"

	"github.com/aretw0/anima/pkg/domain"
)

// Request is what a cognitive step dispatches to the Processor.
type Request struct {
	// Step is the name of the cognitive step issuing the call, for logs and metrics.
	Step string `json:"step"`
	// Messages are the role-tagged prompt entries, oldest first.
	Messages []domain.MemoryEntry `json:"messages"`
	// Schema is a JSON-schema object descriptor. Nil means free text.
	Schema map[string]any `json:"schema,omitempty"`
	// Model is an opaque hint (quality vs. speed).
	Model domain.ModelClass `json:"model,omitempty"`
	// Stream asks the Processor to return fragments as they are produced.
	// Processors may ignore it and answer with a resolved value.
	Stream bool `json:"stream,omitempty"`
}

// Response is either resolved (Text or Value) or live (Stream).
type Response struct {
	// Text is the resolved free-text answer. For structured requests a
	// Processor may also place the raw JSON document here.
	Text string
	// Value is the resolved structured object, when the Processor decoded it.
	Value map[string]any
	// Stream is set when the Processor answers with a fragment sequence.
	Stream Stream
}

// IsStream reports whether the response must be consumed fragment by fragment.
func (r Response) IsStream() bool { return r.Stream != nil }

// Stream is a pull-based sequence of text fragments.
// Recv returns io.EOF once the sequence is complete. Close must be safe to
// call at any time and releases the producer; consumers always call it.
type Stream interface {
	Recv(ctx context.Context) (string, error)
	Close() error
}

// Processor is the language-model collaborator.
type Processor interface {
	Process(ctx context.Context, req Request) (Response, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, req Request) (Response, error)

func (f ProcessorFunc) Process(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// NewChanStream adapts a producer goroutine to Stream.
// The producer sends fragments on frags and closes it when done. A terminal
// error, if any, must be sent on the buffered errc before frags is closed.
// stop is invoked once by Close so the producer can exit early.
func NewChanStream(frags <-chan string, errc <-chan error, stop func()) Stream {
	return &chanStream{frags: frags, errc: errc, stop: stop}
}

type chanStream struct {
	frags <-chan string
	errc  <-chan error
	stop  func()
	once  sync.Once
}

func (s *chanStream) Recv(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case frag, ok := <-s.frags:
		if ok {
			return frag, nil
		}
		select {
		case err := <-s.errc:
			if err != nil {
				return "", err
			}
		default:
		}
		return "", io.EOF
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
	return nil
}
