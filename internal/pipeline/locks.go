// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"sync"
)

// VideoLocks serializes jobs per video id. Entries are dropped when unused.
type VideoLocks struct {
	mu    sync.Mutex
	locks map[string]*videoLock
}

type videoLock struct {
	sem  chan struct{}
	refs int
}

// NewVideoLocks returns an empty lock table.
func NewVideoLocks() *VideoLocks {
	return &VideoLocks{locks: make(map[string]*videoLock)}
}

// Lock blocks until the video is free or ctx is done.
func (l *VideoLocks) Lock(ctx context.Context, videoID string) (unlock func(), err error) {
	l.mu.Lock()
	vl, ok := l.locks[videoID]
	if !ok {
		vl = &videoLock{sem: make(chan struct{}, 1)}
		l.locks[videoID] = vl
	}
	vl.refs++
	l.mu.Unlock()

	select {
	case vl.sem <- struct{}{}:
	case <-ctx.Done():
		l.drop(videoID, vl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-vl.sem
			l.drop(videoID, vl)
		})
	}, nil
}

func (l *VideoLocks) drop(videoID string, vl *videoLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	vl.refs--
	if vl.refs == 0 {
		delete(l.locks, videoID)
	}
}

// Len returns the number of videos currently locked or awaited.
func (l *VideoLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
