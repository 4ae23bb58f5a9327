package router

import (
	"encoding/json"
	"fmt"
)

// Router maps source bucket names to gateway application IDs. The mapping is
// built once at startup and never mutated, so lookups are safe from any
// goroutine.
type Router struct {
	apps map[string]string
}

// New parses a JSON object of the form {"bucket-a": "app_123", ...}.
// A malformed blob is a startup error; an empty mapping is allowed.
func New(mapping string) (*Router, error) {
	apps := make(map[string]string)
	if err := json.Unmarshal([]byte(mapping), &apps); err != nil {
		return nil, fmt.Errorf("invalid bucket to application mapping: %w", err)
	}
	return &Router{apps: apps}, nil
}

// Route returns the application ID for a bucket. A missing or empty entry is
// a normal outcome (the event is unroutable), not an error.
func (r *Router) Route(sourceKey string) (string, bool) {
	appID, ok := r.apps[sourceKey]
	if !ok || appID == "" {
		return "", false
	}
	return appID, true
}
