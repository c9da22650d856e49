package cache

import "errors"

var (
	// ErrCacheMiss is returned when a user has no cached plan
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the shared cache cannot be reached
	ErrCacheUnavailable = errors.New("cache unavailable")
)
