// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"sync"
	"time"
)

// throttler batches events per kind. The first event of a kind starts a
// window; when it closes the batch is handed to the handler.
type throttler struct {
	window  time.Duration
	handler Handler

	mu      sync.Mutex
	pending map[Kind][]Event
	timers  map[Kind]*time.Timer
	stopped bool

	// deliver serializes handler calls.
	deliver sync.Mutex
}

func newThrottler(window time.Duration, handler Handler) *throttler {
	return &throttler{
		window:  window,
		handler: handler,
		pending: map[Kind][]Event{},
		timers:  map[Kind]*time.Timer{},
	}
}

func (t *throttler) add(ev Event) {
	eventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.pending[ev.Kind] = append(t.pending[ev.Kind], ev)
	if t.timers[ev.Kind] == nil {
		kind := ev.Kind
		t.timers[kind] = time.AfterFunc(t.window, func() { t.fire(kind) })
	}
}

func (t *throttler) fire(kind Kind) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	batch := dedupe(t.pending[kind])
	delete(t.pending, kind)
	delete(t.timers, kind)
	stopped := t.stopped
	t.mu.Unlock()

	if stopped || len(batch) == 0 || t.handler == nil {
		return
	}
	batchesTotal.WithLabelValues(kind.String()).Inc()
	t.handler(batch)
}

// stop cancels open windows and drops what they held.
func (t *throttler) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for kind, timer := range t.timers {
		timer.Stop()
		delete(t.timers, kind)
	}
	t.pending = map[Kind][]Event{}
}

// dedupe keeps the last event per path, in first-seen order.
func dedupe(events []Event) []Event {
	index := make(map[string]int, len(events))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if i, ok := index[ev.Path]; ok {
			out[i] = ev
			continue
		}
		index[ev.Path] = len(out)
		out = append(out, ev)
	}
	return out
}
