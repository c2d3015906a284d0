package store

import "strings"

type options struct {
	maxRetries int
	prefix     string
	onConflict ConflictObserver
}

func defaultOptions() options {
	return options{maxRetries: DefaultMaxRetries, prefix: "ll"}
}

// Option configures a store.
type Option func(*options)

// WithMaxRetries bounds optimistic retries per Update.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithKeyPrefix namespaces every Redis key. Ignored by MemoryStore.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if p := strings.Trim(strings.TrimSpace(prefix), ":"); p != "" {
			o.prefix = p
		}
	}
}

// WithConflictObserver installs a callback invoked on every retry.
func WithConflictObserver(fn ConflictObserver) Option {
	return func(o *options) { o.onConflict = fn }
}
