// Package llm performs single logical calls to a text generation backend with
// bounded retries and recovery of JSON wrapped in prose or code fences.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/job-agent/internal/utils"
)

// Request is the input of one logical generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSON asks the backend for a JSON object and makes the invoker parse it.
	JSON bool
}

// Options tune a single Invoke call.
type Options struct {
	// MaxAttempts overrides the policy attempt budget when positive.
	MaxAttempts int
	// RequiredKeys lists keys, dotted for nested objects, that a JSON response must contain.
	RequiredKeys []string
}

// Backend is a text generation endpoint.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Provider() string
	Model() string
}

// Outcome is a successful invocation.
type Outcome struct {
	// Text is the trimmed raw response.
	Text string
	// Value holds the decoded JSON when the request asked for JSON.
	Value    any
	Attempts int
	Recovery Recovery
}

// Object returns Value as a JSON object, or nil when it is something else.
func (o *Outcome) Object() map[string]any {
	if o == nil {
		return nil
	}
	obj, _ := o.Value.(map[string]any)
	return obj
}

// Policy bounds retries. The delay after failed attempt n is
// BaseDelay * 2^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts    int           `mapstructure:"max-attempts"`
	BaseDelay      time.Duration `mapstructure:"base-delay"`
	MaxDelay       time.Duration `mapstructure:"max-delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt-timeout"`
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// DefaultPolicy returns three attempts with a 2s base delay capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Delay returns the backoff to wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay > math.MaxInt64/2 {
			break
		}
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Invoker performs generation calls against a backend. It keeps no state
// between calls and is safe for concurrent use.
type Invoker struct {
	backend  Backend
	policy   Policy
	sleep    SleepFunc
	limiter  *rate.Limiter
	observer Observer
	logger   *zap.Logger
	maxLog   int
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithPolicy sets the retry policy. Zero fields fall back to the defaults.
func WithPolicy(p Policy) Option {
	return func(inv *Invoker) { inv.policy = p.withDefaults() }
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(inv *Invoker) {
		if fn != nil {
			inv.sleep = fn
		}
	}
}

// WithLimiter gates every attempt on the limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(inv *Invoker) { inv.limiter = l }
}

// WithObserver adds an observer of invocation events.
func WithObserver(o Observer) Option {
	return func(inv *Invoker) {
		if o == nil {
			return
		}
		if existing, ok := inv.observer.(Observers); ok {
			inv.observer = append(existing, o)
			return
		}
		inv.observer = Observers{o}
	}
}

// WithLogger sets the logger used for request previews.
func WithLogger(l *zap.Logger, maxLogLength int) Option {
	return func(inv *Invoker) {
		if l != nil {
			inv.logger = l
		}
		if maxLogLength > 0 {
			inv.maxLog = maxLogLength
		}
	}
}

// LimiterPerMinute builds a limiter allowing n requests per minute, or nil when n <= 0.
func LimiterPerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
}

// NewInvoker creates an invoker for backend.
func NewInvoker(backend Backend, opts ...Option) *Invoker {
	inv := &Invoker{
		backend:  backend,
		policy:   DefaultPolicy(),
		sleep:    utils.WaitFor,
		observer: Observers{},
		logger:   zap.NewNop(),
		maxLog:   defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Policy returns the retry policy in effect.
func (inv *Invoker) Policy() Policy {
	return inv.policy
}

// Invoke performs one logical call. Rate limit and transient backend errors
// are retried with exponential backoff; other errors stop immediately. When
// req.JSON is set the response is parsed, falling back to the first '{' .. last
// '}' substring, and checked for opts.RequiredKeys.
//
// A non-nil error is always an *Error.
func (inv *Invoker) Invoke(ctx context.Context, req Request, opts Options) (*Outcome, error) {
	started := time.Now()

	policy := inv.policy
	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}

	base := Event{MaxAttempts: policy.MaxAttempts}
	if inv.backend != nil {
		base.Provider = inv.backend.Provider()
		base.Model = inv.backend.Model()
	}

	fail := func(reason Reason, raw string, attempts int, err error) (*Outcome, error) {
		ev := base
		ev.Attempt = attempts
		ev.Reason = reason
		ev.Raw = raw
		ev.Err = err
		ev.Duration = time.Since(started)
		inv.observer.Finished(ev)
		return nil, &Error{Reason: reason, Raw: raw, Attempts: attempts, Err: err}
	}

	if inv.backend == nil {
		return fail(ReasonTransportError, "", 0, errors.New("llm backend is not configured"))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fail(ReasonTransportError, "", 0, errors.New("prompt must not be empty"))
	}

	inv.logger.Debug("llm request",
		zap.String("provider", base.Provider),
		zap.Bool("json", req.JSON),
		zap.Int("prompt_length", utf8.RuneCountInString(req.Prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(req.Prompt, inv.maxLog)),
	)

	var (
		lastErr  error
		lastRaw  string
		attempts int
	)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if inv.limiter != nil {
			if err := inv.limiter.Wait(ctx); err != nil {
				return fail(ReasonTransportError, lastRaw, attempts, fmt.Errorf("waiting for rate limiter: %w", err))
			}
		}

		attempts = attempt
		callStarted := time.Now()
		raw, err := inv.call(ctx, req, policy)

		ev := base
		ev.Attempt = attempt
		ev.Duration = time.Since(callStarted)
		ev.Raw = raw
		ev.Err = err
		inv.observer.AttemptFinished(ev)

		if err == nil {
			return inv.decode(raw, req, opts, attempt, base, started, fail)
		}

		lastErr = err
		if raw != "" {
			lastRaw = raw
		}
		if ctx.Err() != nil {
			return fail(ReasonTransportError, lastRaw, attempts, fmt.Errorf("%w: %w", ctx.Err(), err))
		}
		if !retryable(err) || attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			if rl.RetryAfter > policy.MaxDelay {
				break
			}
			if rl.RetryAfter > delay {
				delay = rl.RetryAfter
			}
		}

		ev.Delay = delay
		inv.observer.RetryScheduled(ev)

		if err := inv.sleep(ctx, delay); err != nil {
			return fail(ReasonTransportError, lastRaw, attempts, fmt.Errorf("waiting before retry: %w", err))
		}
	}

	return fail(classify(lastErr), lastRaw, attempts, lastErr)
}

func (inv *Invoker) call(ctx context.Context, req Request, policy Policy) (string, error) {
	callCtx := ctx
	if policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()
	}

	raw, err := inv.backend.Generate(callCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !retryable(err) {
		return raw, Transient(err)
	}
	return raw, err
}

func (inv *Invoker) decode(
	raw string,
	req Request,
	opts Options,
	attempt int,
	base Event,
	started time.Time,
	fail func(Reason, string, int, error) (*Outcome, error),
) (*Outcome, error) {
	outcome := &Outcome{
		Text:     strings.TrimSpace(raw),
		Attempts: attempt,
		Recovery: RecoveryNone,
	}

	if req.JSON {
		value, recovery, err := parseJSON(raw)
		if err != nil {
			return fail(ReasonInvalidResponse, raw, attempt, err)
		}
		if missing := missingKeys(value, opts.RequiredKeys); len(missing) > 0 {
			return fail(ReasonInvalidResponse, raw, attempt, fmt.Errorf("%w: %s", ErrMissingKeys, strings.Join(missing, ", ")))
		}
		outcome.Value = value
		outcome.Recovery = recovery
	}

	ev := base
	ev.Attempt = attempt
	ev.Recovery = outcome.Recovery
	ev.Raw = raw
	ev.Duration = time.Since(started)
	inv.observer.Finished(ev)

	return outcome, nil
}
