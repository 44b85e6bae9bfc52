package admission

import (
	"context"
	"fmt"
	"sync"
)

// LiveList pushes the full newest-first admission list to subscribers after
// every write. Slow subscribers only ever see the latest snapshot.
//
// Snapshots are read and delivered under one lock, so a subscriber never
// receives an older list after a newer one.
type LiveList struct {
	store Store

	mu   sync.Mutex
	subs map[int]chan []*Record
	next int
}

// NewLiveList creates a LiveList reading snapshots from store.
func NewLiveList(store Store) *LiveList {
	return &LiveList{store: store, subs: make(map[int]chan []*Record)}
}

// Subscribe returns a channel that first receives the current list and then a
// new list after each write. The channel is closed once ctx is done.
func (l *LiveList) Subscribe(ctx context.Context) (<-chan []*Record, error) {
	l.mu.Lock()
	snap, err := l.snapshot(ctx)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	ch := make(chan []*Record, 1)
	ch <- snap
	id := l.next
	l.next++
	l.subs[id] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(ch)
		l.mu.Unlock()
	}()
	return ch, nil
}

// PublishAdmission refreshes the list and delivers it to every subscriber.
func (l *LiveList) PublishAdmission(ctx context.Context, _ Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap, err := l.snapshot(ctx)
	if err != nil {
		return err
	}
	for _, ch := range l.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return nil
}

// Subscribers returns the number of active subscriptions.
func (l *LiveList) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *LiveList) snapshot(ctx context.Context) ([]*Record, error) {
	recs, _, err := l.store.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("live list snapshot: %w", err)
	}
	return recs, nil
}
