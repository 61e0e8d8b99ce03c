package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/process"
)

// JSONMessage is one line written by the JSONHandler.
type JSONMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Fragment bool   `json:"fragment,omitempty"`
	Step     string `json:"step,omitempty"`
}

// JSONInput is the object form of an input line. Plain text and JSON
// strings are accepted too.
type JSONInput struct {
	Text    string         `json:"text"`
	Speaker string         `json:"speaker,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// JSONHandler implements the IOHandler interface for JSON-Lines communication.
type JSONHandler struct {
	Reader *bufio.Reader

	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		encoder: json.NewEncoder(w),
	}
}

// Output writes one line per action.
func (h *JSONHandler) Output(ctx context.Context, actions []domain.Action) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, act := range actions {
		msg := JSONMessage{Type: string(act.Type), Text: act.Text, Fragment: act.Fragment, Step: act.Step}
		if err := h.encoder.Encode(msg); err != nil {
			return err
		}
	}
	return nil
}

// Input reads the next non-empty line. A line is a JSONInput object, a JSON
// string, or raw text.
func (h *JSONHandler) Input(ctx context.Context) (anima.Perception, error) {
	for {
		if err := ctx.Err(); err != nil {
			return anima.Perception{}, err
		}
		line, err := h.Reader.ReadString('\n')
		text := strings.TrimSpace(line)
		if text == "" {
			if err != nil {
				return anima.Perception{}, err
			}
			continue
		}
		return decodeInput(text)
	}
}

func decodeInput(text string) (anima.Perception, error) {
	var in JSONInput
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &in); err == nil {
			clean, err := SanitizeInput(in.Text)
			if err != nil {
				return anima.Perception{}, err
			}
			return anima.Perception{Text: clean, Speaker: in.Speaker, Params: process.Params(in.Params)}, nil
		}
	}

	var s string
	if err := json.Unmarshal([]byte(text), &s); err == nil {
		text = s
	}
	clean, err := SanitizeInput(text)
	if err != nil {
		return anima.Perception{}, err
	}
	return anima.Perception{Text: clean}, nil
}

// SystemOutput writes a line of type "system".
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encoder.Encode(JSONMessage{Type: "system", Text: msg})
}
