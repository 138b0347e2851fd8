// Package storage provides the durable key-value stores behind learner
// progress, portfolios and accounts.
package storage

import (
	"context"
	"strings"
)

// KV is a string key-value store. Implementations are safe for concurrent
// use and treat each Set as atomic.
type KV interface {
	// Get returns the value for key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// HealthChecker is implemented by stores backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Prefixed scopes every key of kv under prefix.
func Prefixed(kv KV, prefix string) KV {
	return &prefixed{kv: kv, prefix: prefix}
}

type prefixed struct {
	kv     KV
	prefix string
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.kv.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.kv.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.kv.Delete(ctx, p.prefix+key)
}

// LearnerPrefix returns the key prefix for a learner's data.
func LearnerPrefix(userID string) string {
	return "learner:" + strings.TrimSpace(userID) + ":"
}
