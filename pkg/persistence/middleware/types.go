// Package middleware wraps a ports.SessionStore with at-rest transformations
// of session payloads and results.
package middleware

import "github.com/aretw0/dispatch/pkg/ports"

// Middleware allows wrapping a SessionStore to add behavior.
type Middleware func(ports.SessionStore) ports.SessionStore

// Chain applies mws so that the first one sees rows first on write.
func Chain(store ports.SessionStore, mws ...Middleware) ports.SessionStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
