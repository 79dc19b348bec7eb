package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	rbac "github.com/bohemiyan/grc-rbac"
	"github.com/bohemiyan/grc-rbac/quality"
)

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	DB *gorm.DB
	// Engine must not carry its own dispatcher; the service dispatches after commit.
	Engine      *Engine
	Dispatcher  ActionDispatcher
	Logger      *zap.SugaredLogger
	AutoMigrate bool
}

// Service applies workflow changes to stored assessments. Every change runs load,
// engine, versioned write and audit append inside one database transaction.
type Service struct {
	store      *Store
	engine     *Engine
	dispatcher ActionDispatcher
	logger     *zap.SugaredLogger
}

var errRollback = errors.New("rollback")

// NewService creates a workflow service.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Engine == nil {
		cfg.Engine = NewEngine(DefaultDefinition(), WithLogger(cfg.Logger))
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = LogDispatcher{Logger: cfg.Logger}
	}

	s := &Service{
		store:      NewStore(cfg.DB),
		engine:     cfg.Engine,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
	}
	if cfg.AutoMigrate {
		if err := s.store.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Engine returns the engine the service runs.
func (s *Service) Engine() *Engine { return s.engine }

// Create starts a new assessment in the workflow's initial state within the actor's tenant.
// The creator becomes owner unless assignments name one.
func (s *Service) Create(ctx context.Context, actor Actor, title string, assignments map[AssessmentRole]string) (*Assessment, error) {
	if actor.UserID == "" || actor.TenantID == "" {
		return nil, fmt.Errorf("%w: actor identity is required", rbac.ErrInvalidInput)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", rbac.ErrInvalidInput)
	}

	roles := make(map[AssessmentRole]string, len(assignments)+1)
	for role, userID := range assignments {
		if !IsKnownRole(role) {
			return nil, fmt.Errorf("%w: unknown assessment role %q", rbac.ErrInvalidInput, role)
		}
		if userID != "" {
			roles[role] = userID
		}
	}
	if roles[RoleOwner] == "" {
		roles[RoleOwner] = actor.UserID
	}

	initial := s.engine.Definition().Initial()
	a := &Assessment{
		ID:              uuid.NewString(),
		TenantID:        actor.TenantID,
		Title:           title,
		Status:          initial.Status,
		Phase:           initial.Phase,
		RoleAssignments: roles,
		Version:         1,
	}
	next := a.values()
	log := s.engine.newAudit(a, ActionCreated, actor, "")
	log.NewValues = &next

	if err := s.store.Create(ctx, a, log); err != nil {
		return nil, err
	}
	s.logger.Infow("assessment created", "assessment_id", a.ID, "tenant_id", a.TenantID, "user_id", actor.UserID)
	return a, nil
}

// Get loads one assessment of a tenant.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Assessment, error) {
	return s.store.Get(ctx, tenantID, id)
}

// List returns a tenant's assessments, optionally filtered by status.
func (s *Service) List(ctx context.Context, tenantID string, status Status) ([]Assessment, error) {
	return s.store.List(ctx, tenantID, status)
}

// Transition requests a status change on a stored assessment.
func (s *Service) Transition(ctx context.Context, tenantID, id string, req TransitionRequest) (*TransitionResult, error) {
	res, a, err := s.mutate(ctx, tenantID, id, req.ExpectedVersion, func(store *Store, a *Assessment) (*TransitionResult, error) {
		return s.engine.RequestTransition(ctx, a, req, store)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, res, a)
	return res, nil
}

// Resume returns a suspended assessment to its pre-suspension status.
func (s *Service) Resume(ctx context.Context, tenantID, id string, actor Actor, ev Evidence, expectedVersion int64) (*TransitionResult, error) {
	res, a, err := s.mutate(ctx, tenantID, id, expectedVersion, func(store *Store, a *Assessment) (*TransitionResult, error) {
		return s.engine.Resume(ctx, a, actor, ev, store)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, res, a)
	return res, nil
}

// AdvancePhase requests a phase change on a stored assessment.
func (s *Service) AdvancePhase(ctx context.Context, tenantID, id string, req PhaseRequest) (*TransitionResult, error) {
	res, a, err := s.mutate(ctx, tenantID, id, req.ExpectedVersion, func(store *Store, a *Assessment) (*TransitionResult, error) {
		return s.engine.AdvancePhase(ctx, a, req, store)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, res, a)
	return res, nil
}

// UpdateMetrics replaces the metrics of a stored assessment.
func (s *Service) UpdateMetrics(ctx context.Context, tenantID, id string, actor Actor, metrics quality.Metrics, expectedVersion int64) (*Assessment, error) {
	res, a, err := s.mutate(ctx, tenantID, id, expectedVersion, func(store *Store, a *Assessment) (*TransitionResult, error) {
		log, err := s.engine.UpdateMetrics(ctx, a, actor, metrics, store)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Success: true, Audit: log}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// AssignRole hands an assessment role to a user.
func (s *Service) AssignRole(ctx context.Context, tenantID, id string, actor Actor, role AssessmentRole, userID string, expectedVersion int64) (*Assessment, error) {
	res, a, err := s.mutate(ctx, tenantID, id, expectedVersion, func(store *Store, a *Assessment) (*TransitionResult, error) {
		log, err := s.engine.AssignRole(ctx, a, actor, role, userID, store)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Success: true, Audit: log}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// Quality evaluates the quality gate for a stored assessment.
func (s *Service) Quality(ctx context.Context, tenantID, id string) (quality.Control, error) {
	a, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return quality.Control{}, err
	}
	return quality.Evaluate(a.Metrics, s.engine.Thresholds()), nil
}

// AuditTrail returns the audit records of a stored assessment, oldest first.
func (s *Service) AuditTrail(ctx context.Context, tenantID, id string) ([]AuditLog, error) {
	if _, err := s.store.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.store.ListAuditLogs(ctx, tenantID, id)
}

type mutation func(store *Store, a *Assessment) (*TransitionResult, error)

// mutate runs fn against the stored assessment in a transaction. A rejected result or a
// version conflict rolls back; conflicts come back as a ConcurrentModification result.
func (s *Service) mutate(ctx context.Context, tenantID, id string, expectedVersion int64, fn mutation) (*TransitionResult, *Assessment, error) {
	var (
		res *TransitionResult
		out *Assessment
	)
	err := s.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.store.withDB(tx)
		a, err := store.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && a.Version != expectedVersion {
			res = conflict(expectedVersion, a.Version)
			return errRollback
		}

		version := a.Version
		r, err := fn(store, a)
		if err != nil {
			return err
		}
		res = r
		if !r.Success {
			return errRollback
		}
		if err := store.compareAndSwap(ctx, a, version); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				res = conflict(version, 0)
			}
			return err
		}
		out = a
		return nil
	})

	switch {
	case err == nil:
		return res, out, nil
	case errors.Is(err, errRollback), errors.Is(err, ErrConcurrentModification):
		if res != nil && !res.Success {
			s.logger.Debugw("assessment change rejected", "assessment_id", id, "tenant_id", tenantID, "errors", res.Errors)
		}
		return res, nil, nil
	default:
		return nil, nil, err
	}
}

func conflict(expected, actual int64) *TransitionResult {
	details := map[string]string{"expected_version": fmt.Sprint(expected)}
	if actual != 0 {
		details["version"] = fmt.Sprint(actual)
	}
	return rejected(TransitionError{
		Kind:    KindConcurrentModification,
		Message: "assessment was modified concurrently, reload and retry",
		Details: details,
	})
}

func (s *Service) dispatch(ctx context.Context, res *TransitionResult, a *Assessment) {
	if res == nil || !res.Success || a == nil {
		return
	}
	dispatchAll(ctx, s.dispatcher, s.logger, res.Actions, *a)
}
