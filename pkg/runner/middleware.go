package runner

import (
	"context"
	"strings"

	"github.com/aretw0/anima"
)

// Interceptor inspects a perception before it reaches the soul. It returns
// false to swallow the perception, optionally after modifying it.
type Interceptor func(ctx context.Context, p anima.Perception) (anima.Perception, bool, error)

// MultiInterceptor chains interceptors in order. The first one to swallow
// the perception stops the chain.
func MultiInterceptor(interceptors ...Interceptor) Interceptor {
	return func(ctx context.Context, p anima.Perception) (anima.Perception, bool, error) {
		for _, interceptor := range interceptors {
			next, allowed, err := interceptor(ctx, p)
			if err != nil {
				return p, false, err
			}
			if !allowed {
				return next, false, nil
			}
			p = next
		}
		return p, true, nil
	}
}

// SpeakerMiddleware names the user on perceptions that arrive without one.
func SpeakerMiddleware(name string) Interceptor {
	return func(ctx context.Context, p anima.Perception) (anima.Perception, bool, error) {
		if p.Speaker == "" {
			p.Speaker = name
		}
		return p, true, nil
	}
}

// BlocklistMiddleware swallows perceptions containing any of the given
// words, case-insensitively, and tells the user through the handler.
func BlocklistMiddleware(handler IOHandler, words ...string) Interceptor {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(strings.ToLower(w)); w != "" {
			lowered = append(lowered, w)
		}
	}
	return func(ctx context.Context, p anima.Perception) (anima.Perception, bool, error) {
		text := strings.ToLower(p.Text)
		for _, w := range lowered {
			if strings.Contains(text, w) {
				if err := handler.SystemOutput(ctx, "message blocked by policy"); err != nil {
					return p, false, err
				}
				return p, false, nil
			}
		}
		return p, true, nil
	}
}

// PassThrough allows everything.
func PassThrough() Interceptor {
	return func(ctx context.Context, p anima.Perception) (anima.Perception, bool, error) {
		return p, true, nil
	}
}
