package refinement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/llm"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
)

// Config bounds the refinement loop.
type Config struct {
	MaxAttempts        int           // provider calls per policy attempt
	PolicyRetries      int           // extra attempts with the stricter prompt
	MaxStatementLength int           // runes kept from the raw statement
	MaxOutputLength    int           // runes allowed in the refined text
	MaxTokens          int
	CallTimeout        time.Duration
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.PolicyRetries < 0 {
		c.PolicyRetries = 0
	}
	if c.MaxStatementLength <= 0 {
		c.MaxStatementLength = 4000
	}
	if c.MaxOutputLength <= 0 {
		c.MaxOutputLength = 3000
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
}

// Service refines statements. It holds no per-call state and is safe for
// concurrent use.
type Service struct {
	provider llm.Provider
	policy   *PolicyChecker
	cfg      Config
	log      *logger.Logger
}

// NewService creates a refinement service over provider.
func NewService(provider llm.Provider, cfg Config, log *logger.Logger) *Service {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		provider: provider,
		policy:   NewPolicyChecker(cfg.MaxOutputLength),
		cfg:      cfg,
		log:      log,
	}
}

// Refine produces a policy-compliant statement for in. Errors are always
// *domain.RefinementError.
func (s *Service) Refine(ctx context.Context, in *domain.Intake, facts domain.CaseFacts) (*domain.RefinedStatement, error) {
	statement := Sanitize(in.Statement, s.cfg.MaxStatementLength)
	if statement == "" {
		return nil, &domain.RefinementError{Policy: true, Reason: "statement is empty after sanitizing"}
	}

	var (
		calls      int
		violations []Violation
	)
	for round := 0; round <= s.cfg.PolicyRetries; round++ {
		system, user := BuildPrompt(statement, facts, violations)
		resp, n, err := s.complete(ctx, llm.Request{
			System:      system,
			User:        user,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: 0.2,
		})
		calls += n
		if err != nil {
			s.log.Warn("refinement provider failed", "intake_id", in.ID, "provider", s.provider.Name(), "calls", calls, "error", err)
			return nil, &domain.RefinementError{Attempts: calls, Reason: "language model unavailable", Err: err}
		}

		text := cleanOutput(resp.Text)
		violations = s.policy.Check(text)
		if len(violations) == 0 {
			s.log.Info("statement refined", "intake_id", in.ID, "provider", resp.Provider, "model", resp.Model, "calls", calls, "rounds", round+1)
			return &domain.RefinedStatement{
				IntakeID:        in.ID,
				Text:            text,
				PolicyCompliant: true,
				Provider:        resp.Provider,
				Model:           resp.Model,
				Attempts:        calls,
				CreatedAt:       time.Now().UTC(),
			}, nil
		}
		s.log.Warn("refined statement rejected by policy", "intake_id", in.ID, "round", round+1, "categories", categories(violations))
	}

	return nil, &domain.RefinementError{
		Policy:   true,
		Attempts: calls,
		Reason:   "output violated content policy: " + categories(violations),
	}
}

// complete calls the provider with a per-call timeout, retrying retryable
// failures with exponential backoff. It returns the number of calls made.
func (s *Service) complete(ctx context.Context, req llm.Request) (*llm.Response, int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.InitialBackoff
	eb.MaxInterval = s.cfg.MaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.MaxAttempts-1)), ctx)

	var (
		resp  *llm.Response
		calls int
	)
	err := backoff.Retry(func() error {
		calls++
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()

		r, err := s.provider.Complete(callCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if llm.IsRetryable(err) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}, b)
	if err != nil {
		return nil, calls, fmt.Errorf("%s: %w", s.provider.Name(), err)
	}
	return resp, calls, nil
}
