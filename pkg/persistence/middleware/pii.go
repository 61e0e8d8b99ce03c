package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/anima/pkg/ports"
)

// Masked replaces values whose key matches a PII pattern.
const Masked = "***"

type piiFacts struct {
	next     ports.FactStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks facts whose key, or any
// nested object key, matches one of the patterns. Masking happens on write
// only: the soul keeps the real value for the running session, the backend
// never sees it.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.FactStore) ports.FactStore {
		return &piiFacts{next: next, patterns: patterns}
	}
}

func (m *piiFacts) Put(ctx context.Context, soulID, key string, value json.RawMessage) error {
	if m.matches(key) {
		return m.next.Put(ctx, soulID, key, json.RawMessage(`"`+Masked+`"`))
	}

	var decoded any
	if err := json.Unmarshal(value, &decoded); err != nil {
		return fmt.Errorf("fact '%s' is not valid JSON: %w", key, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return m.next.Put(ctx, soulID, key, value)
	}

	m.maskMap(obj)
	masked, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return m.next.Put(ctx, soulID, key, masked)
}

func (m *piiFacts) Load(ctx context.Context, soulID string) (map[string]json.RawMessage, error) {
	return m.next.Load(ctx, soulID)
}

func (m *piiFacts) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// maskMap masks in place. obj is always a fresh decode, never caller data.
func (m *piiFacts) maskMap(obj map[string]any) {
	for k, v := range obj {
		if m.matches(k) {
			obj[k] = Masked
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			m.maskMap(sub)
		}
	}
}
