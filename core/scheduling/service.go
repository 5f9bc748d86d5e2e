// Package scheduling is the entry point used by transports and batch jobs.
// It validates requests, runs the optimization core, applies mutations to
// the repositories and records an audit event for every schedule change.
//
// Errors returned by Service methods are either a *ValidationError for
// malformed input or an infrastructure failure. Expected business outcomes
// such as conflicts or insufficient notice are reported in the result with
// Success set to false.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/rbtsched/core/audit"
	"github.com/kilianp07/rbtsched/core/candidates"
	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/conflict"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/continuity"
	"github.com/kilianp07/rbtsched/core/impact"
	"github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/monitoring"
	"github.com/kilianp07/rbtsched/core/ranking"
	"github.com/kilianp07/rbtsched/core/store"
)

// ValidationError lists the rules a malformed request violated.
type ValidationError = constraints.ValidationError

// Config gathers the tunables of the scheduling core.
type Config struct {
	Constraints constraints.Config `json:"constraints"`
	Candidates  candidates.Config  `json:"candidates"`
	Ranking     ranking.Config     `json:"ranking"`
	// MaxAlternatives caps alternatives offered for a conflicting request.
	MaxAlternatives int `json:"max_alternatives"`
	// MaxUnavailableDays bounds a provider unavailability range.
	MaxUnavailableDays int `json:"max_unavailable_days"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	c.Constraints.SetDefaults()
	c.Candidates.SetDefaults()
	c.Ranking.SetDefaults()
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = 5
	}
	if c.MaxUnavailableDays <= 0 {
		c.MaxUnavailableDays = 90
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Constraints.Validate(); err != nil {
		return fmt.Errorf("constraints: %w", err)
	}
	if err := c.Ranking.Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	return nil
}

// Deps are the collaborators of a Service.
type Deps struct {
	Repos   store.Repositories
	Audit   *audit.Log
	Clock   clock.Clock
	Logger  logger.Logger
	Metrics metrics.MetricsSink
}

// Service implements the scheduling operations. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	cfg       Config
	repos     store.Repositories
	validator *constraints.Validator
	detector  *conflict.Detector
	scorer    *continuity.Scorer
	optimizer *ranking.Optimizer
	analyzer  *impact.Analyzer
	audit     *audit.Log
	clock     clock.Clock
	log       logger.Logger
	newID     func() string
}

// New builds a Service. Repos.Sessions, Repos.Teams and Audit are required.
func New(cfg Config, deps Deps) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Repos.Sessions == nil || deps.Repos.Teams == nil {
		return nil, errors.New("scheduling: session and team repositories are required")
	}
	if deps.Audit == nil {
		return nil, errors.New("scheduling: audit log is required")
	}
	v, err := constraints.NewValidator(cfg.Constraints)
	if err != nil {
		return nil, err
	}
	c := clock.OrSystem(deps.Clock)
	log := logger.OrNop(deps.Logger)
	sink := metrics.OrNop(deps.Metrics)

	detector := conflict.NewDetector(deps.Repos.Sessions)
	scorer := continuity.NewScorer(c)
	gen := candidates.NewGenerator(v, detector, deps.Repos.Teams, deps.Repos.Providers, c, log, cfg.Candidates)
	eval := ranking.NewEvaluator(scorer, v.Location(), c, cfg.Ranking)
	return &Service{
		cfg:       cfg,
		repos:     deps.Repos,
		validator: v,
		detector:  detector,
		scorer:    scorer,
		optimizer: ranking.NewOptimizer(deps.Repos.Sessions, gen, eval, v, c, log, sink),
		analyzer:  impact.NewAnalyzer(deps.Repos.Sessions, scorer, c, log, sink),
		audit:     deps.Audit,
		clock:     c,
		log:       log,
		newID:     uuid.NewString,
	}, nil
}

// Validator exposes the business calendar.
func (s *Service) Validator() *constraints.Validator { return s.validator }

// record appends an audit event after a mutation. The mutation is already
// durable, so a failure is logged and reported to monitoring only.
func (s *Service) record(ctx context.Context, ev model.ScheduleEvent) {
	if _, err := s.audit.Record(ctx, ev); err != nil {
		s.log.Errorf("audit %s: %v", ev.Type, err)
		monitoring.Capture(err, "scheduling", "audit")
	}
}

// infra wraps and reports an unexpected repository failure.
func (s *Service) infra(op string, err error) error {
	monitoring.Capture(err, "scheduling", op)
	s.log.Errorf("%s: %v", op, err)
	return fmt.Errorf("%s: %w", op, err)
}

// checkProvider returns a violation when rbtID is unknown or inactive. A
// service without a provider repository accepts every RBT.
func (s *Service) checkProvider(ctx context.Context, rbtID string) (*constraints.Violation, error) {
	if s.repos.Providers == nil {
		return nil, nil
	}
	p, err := s.repos.Providers.FindByID(ctx, rbtID)
	if errors.Is(err, store.ErrNotFound) {
		return &constraints.Violation{Rule: constraints.RuleProvider, Message: fmt.Sprintf("rbt %s not found", rbtID)}, nil
	}
	if err != nil {
		return nil, s.infra("load rbt", err)
	}
	if !p.Active {
		return &constraints.Violation{Rule: constraints.RuleProvider, Message: fmt.Sprintf("rbt %s is inactive", rbtID)}, nil
	}
	return nil, nil
}

// activeTeam returns the client's active team, or nil when there is none.
func (s *Service) activeTeam(ctx context.Context, clientID string) (*model.Team, error) {
	t, err := s.repos.Teams.FindActiveByClientID(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.infra("load team", err)
	}
	return &t, nil
}

func (s *Service) sessionEnd(start time.Time) time.Time {
	return start.Add(s.validator.SessionDuration())
}

func violation(rule, format string, args ...any) constraints.Violation {
	return constraints.Violation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}
