// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inference

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/metrics"
)

// ErrCacheClosed is returned by Acquire after Close.
var ErrCacheClosed = errors.New("session cache closed")

// SessionCache shares loaded sessions by model id and keeps at most
// maxResident of them, evicting the least recently used. An evicted session
// is closed once its last lease is released.
type SessionCache struct {
	rt          Runtime
	provider    Provider
	maxResident int
	logger      zerolog.Logger

	mu     sync.Mutex
	lru    *list.List // front = most recently used
	items  map[string]*list.Element
	closed bool

	group singleflight.Group
}

type cacheEntry struct {
	modelID string
	session Session
	refs    int
	evicted bool
}

// NewSessionCache creates a cache that loads sessions on provider.
func NewSessionCache(rt Runtime, provider Provider, maxResident int) *SessionCache {
	if maxResident < 1 {
		maxResident = 1
	}
	return &SessionCache{
		rt:          rt,
		provider:    provider,
		maxResident: maxResident,
		logger:      xglog.WithComponent("inference"),
		lru:         list.New(),
		items:       make(map[string]*list.Element),
	}
}

// Provider is the execution provider sessions are loaded on.
func (c *SessionCache) Provider() Provider {
	return c.provider
}

// Lease is a reference to a cached session. Release it when done.
type Lease struct {
	cache   *SessionCache
	entry   *cacheEntry
	release sync.Once
}

// Run runs one inference pass and records its latency.
func (l *Lease) Run(ctx context.Context, in Tensor) (Tensor, error) {
	start := time.Now()
	out, err := l.entry.session.Run(ctx, in)
	metrics.ObserveInference(string(l.cache.provider), time.Since(start), err)
	return out, err
}

// Release drops the reference; safe to call more than once.
func (l *Lease) Release() {
	l.release.Do(func() {
		l.cache.release(l.entry)
	})
}

// Acquire returns a lease on the session for model, loading it at most once
// even under concurrent callers.
func (c *SessionCache) Acquire(ctx context.Context, model media.OnnxModel) (*Lease, error) {
	for {
		if e, ok, err := c.lookup(model.ID); err != nil {
			return nil, err
		} else if ok {
			metrics.RecordSessionLookup(true)
			return &Lease{cache: c, entry: e}, nil
		}

		// Only the caller whose function runs paid for the load. Result.Shared
		// is true for the loader as well once anyone else joined.
		var loaded bool
		ch := c.group.DoChan(model.ID, func() (any, error) {
			loaded = true
			return c.load(model)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return nil, res.Err
		}
		metrics.RecordSessionLookup(!loaded)

		e := res.Val.(*cacheEntry)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrCacheClosed
		}
		if !e.evicted {
			e.refs++
			c.mu.Unlock()
			return &Lease{cache: c, entry: e}, nil
		}
		// Evicted before this caller could take a reference; look again.
		c.mu.Unlock()
	}
}

func (c *SessionCache) lookup(modelID string) (*cacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false, ErrCacheClosed
	}
	el, ok := c.items[modelID]
	if !ok {
		return nil, false, nil
	}
	c.lru.MoveToFront(el)
	e := el.Value.(*cacheEntry)
	e.refs++
	return e, true, nil
}

func (c *SessionCache) load(model media.OnnxModel) (*cacheEntry, error) {
	// A flight that finished just before this one started may have inserted it.
	c.mu.Lock()
	if el, ok := c.items[model.ID]; ok {
		e := el.Value.(*cacheEntry)
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	logger := c.logger.With().Str(xglog.FieldModelID, model.ID).Str(xglog.FieldProvider, string(c.provider)).Logger()
	start := time.Now()
	sess, err := c.rt.Load(model, c.provider)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "inference.session.load_failed").Msg("failed to load inference session")
		return nil, fmt.Errorf("load model %s: %w", model.ID, err)
	}
	logger.Info().
		Str(xglog.FieldEvent, "inference.session.loaded").
		Dur("duration", time.Since(start)).
		Msg("inference session loaded")

	e := &cacheEntry{modelID: model.ID, session: sess}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sess.Close()
		return nil, ErrCacheClosed
	}
	c.items[model.ID] = c.lru.PushFront(e)
	toClose := c.evictLocked()
	metrics.SessionsResident.Set(float64(len(c.items)))
	c.mu.Unlock()

	c.closeAll(toClose)
	return e, nil
}

// evictLocked trims the cache to maxResident and returns sessions that are
// no longer referenced and can be closed now.
func (c *SessionCache) evictLocked() []*cacheEntry {
	var toClose []*cacheEntry
	for c.lru.Len() > c.maxResident {
		el := c.lru.Back()
		e := el.Value.(*cacheEntry)
		c.lru.Remove(el)
		delete(c.items, e.modelID)
		e.evicted = true
		metrics.SessionCacheEvictions.Inc()
		c.logger.Info().
			Str(xglog.FieldModelID, e.modelID).
			Str(xglog.FieldEvent, "inference.session.evicted").
			Int("refs", e.refs).
			Msg("inference session evicted")
		if e.refs == 0 {
			toClose = append(toClose, e)
		}
	}
	return toClose
}

func (c *SessionCache) release(e *cacheEntry) {
	c.mu.Lock()
	e.refs--
	closeNow := e.evicted && e.refs == 0
	c.mu.Unlock()

	if closeNow {
		c.closeAll([]*cacheEntry{e})
	}
}

func (c *SessionCache) closeAll(entries []*cacheEntry) {
	for _, e := range entries {
		if err := e.session.Close(); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldModelID, e.modelID).Msg("close inference session")
		}
	}
}

// Len returns the number of resident sessions.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close evicts everything. Sessions still leased are closed on release.
func (c *SessionCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var toClose []*cacheEntry
	for c.lru.Len() > 0 {
		el := c.lru.Back()
		e := el.Value.(*cacheEntry)
		c.lru.Remove(el)
		delete(c.items, e.modelID)
		e.evicted = true
		if e.refs == 0 {
			toClose = append(toClose, e)
		}
	}
	metrics.SessionsResident.Set(0)
	c.mu.Unlock()

	c.closeAll(toClose)
	return nil
}
