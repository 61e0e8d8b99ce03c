// Package scripted provides a deterministic Processor that answers from a
// prepared script. It backs tests and the CLI dry-run mode.
package scripted

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aretw0/anima/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ErrScriptExhausted is returned when no reply is left for a request.
var ErrScriptExhausted = errors.New("scripted processor has no reply left")

// Reply is one prepared answer.
type Reply struct {
	// Step restricts the reply to requests issued by this step. Empty matches any step.
	Step string `yaml:"step,omitempty"`
	// Text is a resolved free-text answer.
	Text string `yaml:"text,omitempty"`
	// Value is a resolved structured answer.
	Value map[string]any `yaml:"value,omitempty"`
	// Fragments turns the reply into a stream.
	Fragments []string `yaml:"fragments,omitempty"`
	// Hang keeps the stream open after the last fragment until it is closed.
	Hang bool `yaml:"hang,omitempty"`
	// Error makes the call fail.
	Error string `yaml:"error,omitempty"`
}

// Text returns a resolved free-text reply.
func Text(text string) Reply { return Reply{Text: text} }

// Value returns a resolved structured reply.
func Value(value map[string]any) Reply { return Reply{Value: value} }

// Stream returns a streamed reply.
func Stream(fragments ...string) Reply { return Reply{Fragments: fragments} }

// Fail returns a reply that fails the call.
func Fail(msg string) Reply { return Reply{Error: msg} }

// For restricts r to a step name.
func (r Reply) For(step string) Reply {
	r.Step = step
	return r
}

type script struct {
	Replies []Reply `yaml:"replies"`
}

// Processor replays replies in order. Replies bound to a step are consumed
// only by that step; unbound replies are consumed by anyone.
type Processor struct {
	mu       sync.Mutex
	replies  []Reply
	requests []ports.Request
	wg       sync.WaitGroup
}

// New creates a processor with the given replies queued.
func New(replies ...Reply) *Processor {
	return &Processor{replies: replies}
}

// Load reads a YAML script of the form {replies: [...]}.
func Load(path string) (*Processor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	return New(s.Replies...), nil
}

// Enqueue appends replies to the script.
func (p *Processor) Enqueue(replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
}

// Requests returns every request received so far.
func (p *Processor) Requests() []ports.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ports.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Remaining reports how many replies are still queued.
func (p *Processor) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replies)
}

// Wait blocks until every stream producer has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) next(req ports.Request) (Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	for i, r := range p.replies {
		if r.Step == "" || r.Step == req.Step {
			p.replies = append(p.replies[:i:i], p.replies[i+1:]...)
			return r, nil
		}
	}
	return Reply{}, fmt.Errorf("step '%s': %w", req.Step, ErrScriptExhausted)
}

func (p *Processor) Process(ctx context.Context, req ports.Request) (ports.Response, error) {
	if err := ctx.Err(); err != nil {
		return ports.Response{}, err
	}
	r, err := p.next(req)
	if err != nil {
		return ports.Response{}, err
	}
	if r.Error != "" {
		return ports.Response{}, errors.New(r.Error)
	}
	if r.Fragments != nil {
		return ports.Response{Stream: p.stream(r)}, nil
	}
	return ports.Response{Text: r.Text, Value: r.Value}, nil
}

func (p *Processor) stream(r Reply) ports.Stream {
	frags := make(chan string)
	errc := make(chan error, 1)
	done := make(chan struct{})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(frags)
		for _, f := range r.Fragments {
			select {
			case frags <- f:
			case <-done:
				return
			}
		}
		if r.Hang {
			<-done
		}
	}()

	return ports.NewChanStream(frags, errc, func() { close(done) })
}
