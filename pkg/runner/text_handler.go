package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/pkg/domain"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	// Styler decorates host and log lines. Nil prints them as is.
	Styler func(string) string
	// Speaker names the user on every perception.
	Speaker string
	// ShowLogs prints log actions alongside speech.
	ShowLogs bool

	mu       sync.Mutex
	midLine  bool
	lastStep string

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerStyler configures how host and log lines are decorated.
func WithTextHandlerStyler(styler func(string) string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Styler = styler
	}
}

// WithTextHandlerSpeaker names the user on every perception.
func WithTextHandlerSpeaker(name string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Speaker = name
	}
}

// WithTextHandlerLogs prints log actions.
func WithTextHandlerLogs(show bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.ShowLogs = show
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump owns the reader. A blocked read cannot be interrupted, so reads happen
// here and Input selects on the channel and the context.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				h.inputChan <- inputResult{err: err}
			}
			close(h.inputChan)
			return
		}
	}
}

// Output prints complete speech through the renderer and streamed fragments
// inline, as they arrive.
func (h *TextHandler) Output(ctx context.Context, actions []domain.Action) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, act := range actions {
		switch act.Type {
		case domain.ActionSpeak:
			if act.Fragment {
				if h.midLine && act.Step != h.lastStep {
					fmt.Fprintln(h.Writer)
				}
				fmt.Fprint(h.Writer, act.Text)
				h.midLine = true
				h.lastStep = act.Step
				continue
			}
			h.endLine()
			output := act.Text
			if h.Renderer != nil {
				if rendered, err := h.Renderer(act.Text); err == nil {
					output = rendered
				}
			}
			fmt.Fprintln(h.Writer, strings.TrimSpace(output))
		case domain.ActionLog:
			if !h.ShowLogs {
				continue
			}
			h.endLine()
			fmt.Fprintln(h.Writer, h.style("  · "+act.Text))
		}
	}
	return nil
}

func (h *TextHandler) Input(ctx context.Context) (anima.Perception, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return anima.Perception{}, ctx.Err()
		default:
			h.mu.Lock()
			h.endLine()
			h.mu.Unlock()
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			return anima.Perception{}, ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return anima.Perception{}, io.EOF
			}
			if res.err != nil {
				return anima.Perception{}, res.err
			}

			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintln(h.Writer, h.style(fmt.Sprintf("Error: %v. Please try again.", err)))
				continue
			}
			if clean == "" {
				continue
			}
			return anima.Perception{Text: clean, Speaker: h.Speaker}, nil
		}
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endLine()
	fmt.Fprintln(h.Writer, h.style("[system] "+msg))
	return nil
}

// endLine terminates a streamed reply. Callers hold mu.
func (h *TextHandler) endLine() {
	if h.midLine {
		fmt.Fprintln(h.Writer)
		h.midLine = false
		h.lastStep = ""
	}
}

func (h *TextHandler) style(s string) string {
	if h.Styler == nil {
		return s
	}
	return h.Styler(s)
}
