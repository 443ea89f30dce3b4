// Package cdp drives the chat application's Chrome DevTools debugging
// surface with go-rod. It is the only component that touches the live
// page; everything above it sees the Prober/Injector ports.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"golang.org/x/time/rate"

	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

const (
	defaultDevtoolsURL    = "http://127.0.0.1:9223"
	defaultEvalsPerSecond = 8
	defaultProbeTimeout   = 10 * time.Second
)

type Config struct {
	// DevtoolsURL is the debugging endpoint the chat application was
	// started with.
	DevtoolsURL string
	// PageURLPattern selects the chat page among the open targets by
	// URL substring. Empty matches the first http(s) page.
	PageURLPattern string
	// ProbeTimeout bounds one evaluation when the caller's context
	// carries no deadline of its own.
	ProbeTimeout time.Duration
	// EvalsPerSecond paces evaluations against the shared connection.
	EvalsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.DevtoolsURL == "" {
		c.DevtoolsURL = defaultDevtoolsURL
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.EvalsPerSecond <= 0 {
		c.EvalsPerSecond = defaultEvalsPerSecond
	}
	return c
}

// Surface attaches to the running chat application over CDP. All
// evaluations are strictly serialized: the page is one shared resource
// and interleaved probes against it are not safe.
type Surface struct {
	cfg     Config
	limiter *rate.Limiter

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

var (
	_ ports.Prober   = (*Surface)(nil)
	_ ports.Injector = (*Surface)(nil)
)

func New(cfg Config) *Surface {
	cfg = cfg.withDefaults()
	return &Surface{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.EvalsPerSecond), 1),
	}
}

// Connect resolves the DevTools endpoint and attaches to the chat page.
func (s *Surface) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	controlURL, err := launcher.ResolveURL(s.cfg.DevtoolsURL)
	if err != nil {
		return fmt.Errorf("resolve devtools url %s: %w", s.cfg.DevtoolsURL, domain.ErrNoSurface)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to devtools: %w", domain.ErrNoSurface)
	}
	s.browser = browser

	page, err := s.findPage()
	if err != nil {
		_ = browser.Close()
		s.browser = nil
		return err
	}
	s.page = page
	logger.Info("attached to chat surface at %s", s.cfg.DevtoolsURL)

	return nil
}

// Probe evaluates one read-only query and returns its value as text.
func (s *Surface) Probe(ctx context.Context, query string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return "", domain.ErrNoSurface
	}

	evalCtx, cancel := s.boundContext(ctx)
	defer cancel()

	res, err := s.page.Context(evalCtx).Evaluate(&rod.EvalOptions{
		JS:           query,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return "", s.mapEvalError(err, evalCtx)
	}
	if res == nil || res.Value.Nil() {
		return "", nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProbeMalformed, err)
	}

	text := string(raw)
	if unquoted, uerr := strconv.Unquote(text); uerr == nil {
		text = unquoted
	}

	return text, nil
}

// Inject writes the payload into the chat input and submits it, via the
// send button when one is found and a synthesized Enter otherwise.
func (s *Surface) Inject(ctx context.Context, payload string) (ports.InjectionResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return ports.InjectionResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return ports.InjectionResult{}, domain.ErrNoSurface
	}

	evalCtx, cancel := s.boundContext(ctx)
	defer cancel()

	res, err := s.page.Context(evalCtx).Evaluate(&rod.EvalOptions{
		JS:           injectScript(payload),
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return ports.InjectionResult{}, fmt.Errorf("inject: %w", s.mapEvalError(err, evalCtx))
	}

	method := ""
	if res != nil && !res.Value.Nil() {
		method = res.Value.Str()
	}
	if method == "" {
		return ports.InjectionResult{}, fmt.Errorf("no input surface accepted the payload: %w", domain.ErrInjectionFailed)
	}

	return ports.InjectionResult{Method: method}, nil
}

// Close detaches from the browser without closing the chat application.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.page = nil
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil

	return err
}

func (s *Surface) findPage() (*rod.Page, error) {
	pages, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", domain.ErrNoSurface)
	}

	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		if !strings.HasPrefix(info.URL, "http") {
			continue
		}
		if s.cfg.PageURLPattern == "" || strings.Contains(info.URL, s.cfg.PageURLPattern) {
			return page, nil
		}
	}

	return nil, fmt.Errorf("no page matching %q among %d targets: %w",
		s.cfg.PageURLPattern, len(pages), domain.ErrNoSurface)
}

func (s *Surface) boundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProbeTimeout)
}

func (s *Surface) mapEvalError(err error, evalCtx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) || evalCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", domain.ErrProbeTimeout, err)
	}
	return fmt.Errorf("evaluate: %w", err)
}

// injectScript fills the input surface and submits. It returns the
// delivery method used, or an empty string when no usable input exists.
func injectScript(payload string) string {
	quoted := strconv.Quote(payload)
	return fmt.Sprintf(`() => {
	const text = %s;
	const input = document.querySelector('div[contenteditable="true"], textarea');
	if (!input) return '';
	input.focus();
	if (input.tagName === 'TEXTAREA') {
		const setter = Object.getOwnPropertyDescriptor(window.HTMLTextAreaElement.prototype, 'value').set;
		setter.call(input, text);
	} else {
		input.innerText = text;
	}
	input.dispatchEvent(new InputEvent('input', { bubbles: true }));
	const send = document.querySelector('button[aria-label*="Send"], button[type="submit"]');
	if (send && !send.disabled) {
		send.click();
		return 'send-button';
	}
	const enter = { key: 'Enter', code: 'Enter', keyCode: 13, bubbles: true };
	input.dispatchEvent(new KeyboardEvent('keydown', enter));
	input.dispatchEvent(new KeyboardEvent('keyup', enter));
	return 'enter-key';
}`, quoted)
}
