package application

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bnema/deskbridge/internal/ports"
)

// fakeClock advances virtual time by d on every After call, so poll
// loops run to completion without real delays.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	at := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- at
	return ch
}

// fakeSurface scripts probe responses by query kind: the busy probe is
// recognized by its stop-button selector, health probes by their own
// markers, and everything else is treated as a content extraction. Each
// script slice is consumed one entry per call, holding its last value.
type fakeSurface struct {
	mu sync.Mutex

	contents   []string
	contentIdx int
	busy       []bool
	busyIdx    int
	input      bool
	ready      bool

	contentErr error
	busyErr    error
	injectErr  error

	injected []string
}

var _ ports.Prober = (*fakeSurface)(nil)
var _ ports.Injector = (*fakeSurface)(nil)

func (f *fakeSurface) Probe(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(query, `aria-label*="Stop"`):
		if f.busyErr != nil {
			return "", f.busyErr
		}
		return strconv.FormatBool(f.nextBusy()), nil
	case strings.Contains(query, "readyState"):
		return strconv.FormatBool(f.ready), nil
	case strings.Contains(query, "aria-disabled"):
		return strconv.FormatBool(f.input), nil
	default:
		if f.contentErr != nil {
			return "", f.contentErr
		}
		return f.nextContent(), nil
	}
}

func (f *fakeSurface) Inject(_ context.Context, payload string) (ports.InjectionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.injectErr != nil {
		return ports.InjectionResult{}, f.injectErr
	}
	f.injected = append(f.injected, payload)

	return ports.InjectionResult{Method: "send-button"}, nil
}

func (f *fakeSurface) nextBusy() bool {
	if len(f.busy) == 0 {
		return false
	}
	idx := f.busyIdx
	if idx >= len(f.busy) {
		idx = len(f.busy) - 1
	}
	f.busyIdx++

	return f.busy[idx]
}

func (f *fakeSurface) nextContent() string {
	if len(f.contents) == 0 {
		return ""
	}
	idx := f.contentIdx
	if idx >= len(f.contents) {
		idx = len(f.contents) - 1
	}
	f.contentIdx++

	return f.contents[idx]
}
