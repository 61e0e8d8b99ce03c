package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxInputSize bounds a perception to 4KB.
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize overrides DefaultMaxInputSize.
	EnvMaxInputSize = "ANIMA_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// InputPolicy bounds what a perception may carry into working memory.
type InputPolicy struct {
	// MaxBytes rejects longer input. Zero disables the check.
	MaxBytes int
	// KeepFormatChars keeps invisible format characters (zero-width joiners,
	// bidi overrides), which are stripped by default.
	KeepFormatChars bool
}

// DefaultInputPolicy reads the size limit from the environment.
func DefaultInputPolicy() InputPolicy {
	limit := DefaultMaxInputSize
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			limit = size
		}
	}
	return InputPolicy{MaxBytes: limit}
}

// SanitizeInput applies DefaultInputPolicy.
func SanitizeInput(input string) (string, error) {
	return DefaultInputPolicy().Clean(input)
}

// Clean rejects oversized or malformed input and strips control characters
// other than newline, tab and carriage return. Input is rejected rather than
// truncated.
func (p InputPolicy) Clean(input string) (string, error) {
	if p.MaxBytes > 0 && len(input) > p.MaxBytes {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), p.MaxBytes)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	if strings.IndexFunc(input, p.drop) < 0 {
		return input, nil
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !p.drop(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func (p InputPolicy) drop(r rune) bool {
	if r == '\n' || r == '\t' || r == '\r' {
		return false
	}
	if unicode.IsControl(r) {
		return true
	}
	return !p.KeepFormatChars && unicode.Is(unicode.Cf, r)
}
