// Package middleware provides decorators for the persistence ports.
package middleware

import "github.com/aretw0/anima/pkg/ports"

// Middleware allows wrapping a FactStore to add behavior.
type Middleware func(ports.FactStore) ports.FactStore

// TranscriptMiddleware allows wrapping a TranscriptStore to add behavior.
type TranscriptMiddleware func(ports.TranscriptStore) ports.TranscriptStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.FactStore, mws ...Middleware) ports.FactStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
