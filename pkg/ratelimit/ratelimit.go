// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ratelimit limits requests per string key, such as an API key.
// Each key gets a token bucket of size burst that refills at the given rate.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

type Limiter struct {
	mux     sync.Mutex
	limiter map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
}

// New returns a Limiter that refills one token every r, up to burst tokens.
func New(r time.Duration, burst int) *Limiter {
	return &Limiter{
		limiter: make(map[string]*rate.Limiter),
		rate:    rate.Every(r),
		burst:   burst,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mux.Lock()
	defer l.mux.Unlock()

	limiter, ok := l.limiter[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiter[key] = limiter
	}
	return limiter
}

// Allow returns ErrRateLimitExceeded when key has fewer than count tokens
// left.
func (l *Limiter) Allow(key string, count int) error {
	if !l.get(key).AllowN(time.Now(), count) {
		return ErrRateLimitExceeded
	}
	return nil
}

// Wait blocks until key has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}

// Clear deletes the limiter that belongs to key.
func (l *Limiter) Clear(key string) {
	l.mux.Lock()
	defer l.mux.Unlock()

	delete(l.limiter, key)
}
