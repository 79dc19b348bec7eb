package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	rbac "github.com/bohemiyan/grc-rbac"
	"github.com/bohemiyan/grc-rbac/quality"
)

// TransitionResult is the outcome of a transition or phase request.
// A rejected result carries Errors and leaves the assessment untouched.
type TransitionResult struct {
	Success         bool              `json:"success"`
	NewStatus       Status            `json:"new_status,omitempty"`
	NewPhase        Phase             `json:"new_phase,omitempty"`
	Errors          []TransitionError `json:"errors,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Quality         *quality.Control  `json:"quality,omitempty"`
	OverrideApplied bool              `json:"override_applied,omitempty"`
	Audit           *AuditLog         `json:"audit,omitempty"`
	Actions         []AutomaticAction `json:"-"`
}

// Err returns nil for an accepted result and a *RejectionError otherwise.
func (r *TransitionResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &RejectionError{Errors: r.Errors}
}

func rejected(errs ...TransitionError) *TransitionResult {
	return &TransitionResult{Errors: errs}
}

// Engine validates and applies workflow changes against a Definition.
// It holds no per-assessment state and is safe for concurrent use.
type Engine struct {
	def        *Definition
	thresholds quality.Thresholds
	dispatcher ActionDispatcher
	logger     *zap.SugaredLogger
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds sets the quality gate thresholds used for gated targets.
func WithThresholds(t quality.Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithDispatcher runs automatic actions right after an accepted change.
func WithDispatcher(d ActionDispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator sets the audit record ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine creates an engine over def.
func NewEngine(def *Definition, opts ...Option) *Engine {
	if def == nil {
		panic("workflow: definition is required")
	}
	e := &Engine{
		def:        def,
		thresholds: quality.DefaultThresholds(),
		logger:     zap.NewNop().Sugar(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definition returns the workflow table the engine runs.
func (e *Engine) Definition() *Definition { return e.def }

// Thresholds returns the quality gate thresholds.
func (e *Engine) Thresholds() quality.Thresholds { return e.thresholds }

// RequestTransition moves a to req.Target when the edge exists and every gate passes.
// Rejections are returned as results; the error is reserved for invalid input and sink failures.
func (e *Engine) RequestTransition(ctx context.Context, a *Assessment, req TransitionRequest, sink AuditSink) (*TransitionResult, error) {
	if err := e.precheck(a, sink); err != nil {
		return nil, err
	}
	if te := checkIdentity(req.Actor); te != nil {
		return rejected(*te), nil
	}

	tr, ok := e.def.Lookup(a.Status, req.Target)
	if !ok {
		return rejected(TransitionError{
			Kind:    KindUnknownTransition,
			Message: fmt.Sprintf("no transition from %s to %s", a.Status, req.Target),
			Details: map[string]string{"from": string(a.Status), "to": string(req.Target)},
		}), nil
	}
	if tr.Kind == KindResume && req.Target != a.PreviousStatus {
		return rejected(TransitionError{
			Kind:    KindUnknownTransition,
			Message: fmt.Sprintf("resume must return to %s", a.PreviousStatus),
			Details: map[string]string{"previous_status": string(a.PreviousStatus), "to": string(req.Target)},
		}), nil
	}
	if te := checkRole(a, req.Actor, tr.RequiredRole); te != nil {
		return rejected(*te), nil
	}
	if tr.RequiredPhase != "" && a.Phase != tr.RequiredPhase {
		return rejected(TransitionError{
			Kind:    KindPhaseMismatch,
			Message: fmt.Sprintf("transition requires phase %s, assessment is in %s", tr.RequiredPhase, a.Phase),
			Details: map[string]string{"required_phase": string(tr.RequiredPhase), "phase": string(a.Phase)},
		}), nil
	}

	blocking, notices := evaluateRules(tr.ValidationRules, a, req.Evidence)
	if len(blocking) > 0 {
		return rejected(validationErrors(blocking)...), nil
	}
	warnings := ruleMessages(notices)

	var (
		control  *quality.Control
		override bool
	)
	if tr.To == StatusConcluido {
		c := quality.Evaluate(a.Metrics, e.thresholds)
		control = &c
		switch c.Status {
		case quality.StatusFailed:
			if !req.Actor.Permissions.Has(rbac.PermOverrideQualityGate) {
				res := rejected(TransitionError{
					Kind:    KindQualityGateFailed,
					Message: "quality gate failed: " + strings.Join(c.Issues, "; "),
				})
				res.Quality = control
				return res, nil
			}
			override = true
			warnings = append(warnings, "quality gate overridden: "+strings.Join(c.Issues, "; "))
		case quality.StatusWarning:
			warnings = append(warnings, "quality gate warning: "+strings.Join(c.Issues, "; "))
		}
	}

	next := Values{Status: tr.To, Phase: a.Phase}
	if tr.EntryPhase != "" {
		next.Phase = tr.EntryPhase
	}
	if tr.Kind == KindSuspend {
		next.PreviousStatus = a.Status
	}

	res, err := e.commit(ctx, a, sink, actionForKind(tr.Kind), req.Actor, req.Evidence, next, warnings)
	if err != nil {
		return nil, err
	}
	res.Quality = control
	res.OverrideApplied = override
	res.Actions = tr.AutomaticActions
	if override {
		e.logger.Warnw("quality gate overridden",
			"assessment_id", a.ID, "tenant_id", a.TenantID, "user_id", req.Actor.UserID)
	}
	dispatchAll(ctx, e.dispatcher, e.logger, tr.AutomaticActions, *a)
	return res, nil
}

// Resume returns a suspended assessment to the status it held before suspension.
func (e *Engine) Resume(ctx context.Context, a *Assessment, actor Actor, ev Evidence, sink AuditSink) (*TransitionResult, error) {
	if err := e.precheck(a, sink); err != nil {
		return nil, err
	}
	if a.Status != StatusSuspenso || a.PreviousStatus == "" {
		return rejected(TransitionError{
			Kind:    KindUnknownTransition,
			Message: fmt.Sprintf("assessment in %s is not suspended", a.Status),
			Details: map[string]string{"from": string(a.Status)},
		}), nil
	}
	return e.RequestTransition(ctx, a, TransitionRequest{Target: a.PreviousStatus, Actor: actor, Evidence: ev}, sink)
}

// AdvancePhase moves a to another phase within its current status.
func (e *Engine) AdvancePhase(ctx context.Context, a *Assessment, req PhaseRequest, sink AuditSink) (*TransitionResult, error) {
	if err := e.precheck(a, sink); err != nil {
		return nil, err
	}
	if te := checkIdentity(req.Actor); te != nil {
		return rejected(*te), nil
	}

	pt, ok := e.def.LookupPhase(a.Status, a.Phase, req.Target)
	if !ok {
		return rejected(TransitionError{
			Kind:    KindUnknownTransition,
			Message: fmt.Sprintf("no phase transition from %s to %s in %s", a.Phase, req.Target, a.Status),
			Details: map[string]string{"status": string(a.Status), "from": string(a.Phase), "to": string(req.Target)},
		}), nil
	}
	if te := checkRole(a, req.Actor, pt.RequiredRole); te != nil {
		return rejected(*te), nil
	}

	blocking, notices := evaluateRules(pt.ValidationRules, a, req.Evidence)
	if len(blocking) > 0 {
		return rejected(validationErrors(blocking)...), nil
	}

	next := Values{Status: a.Status, Phase: pt.To, PreviousStatus: a.PreviousStatus}
	res, err := e.commit(ctx, a, sink, ActionPhaseChanged, req.Actor, req.Evidence, next, ruleMessages(notices))
	if err != nil {
		return nil, err
	}
	res.Actions = pt.AutomaticActions
	dispatchAll(ctx, e.dispatcher, e.logger, pt.AutomaticActions, *a)
	return res, nil
}

// UpdateMetrics replaces the assessment metrics and records the change.
func (e *Engine) UpdateMetrics(ctx context.Context, a *Assessment, actor Actor, metrics quality.Metrics, sink AuditSink) (*AuditLog, error) {
	if err := e.checkFieldChange(a, actor, sink, metricEditors); err != nil {
		return nil, err
	}
	if err := metrics.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", rbac.ErrInvalidInput, err)
	}
	old := a.Metrics
	log := e.newAudit(a, ActionMetricsUpdated, actor, "")
	log.OldValues = &Values{Metrics: &old}
	log.NewValues = &Values{Metrics: &metrics}
	if err := sink.Append(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to append audit log: %w", err)
	}
	a.Metrics = metrics
	a.UpdatedAt = log.Timestamp
	return log, nil
}

// AssignRole hands role on a to userID, replacing any previous holder.
func (e *Engine) AssignRole(ctx context.Context, a *Assessment, actor Actor, role AssessmentRole, userID string, sink AuditSink) (*AuditLog, error) {
	if !IsKnownRole(role) {
		return nil, fmt.Errorf("%w: unknown assessment role %q", rbac.ErrInvalidInput, role)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", rbac.ErrInvalidInput)
	}
	if err := e.checkFieldChange(a, actor, sink, assignmentEditors); err != nil {
		return nil, err
	}
	log := e.newAudit(a, ActionRoleAssigned, actor, "")
	if prev := a.RoleAssignments[role]; prev != "" {
		log.OldValues = &Values{Assignment: &Assignment{Role: role, UserID: prev}}
	}
	log.NewValues = &Values{Assignment: &Assignment{Role: role, UserID: userID}}
	if err := sink.Append(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to append audit log: %w", err)
	}
	if a.RoleAssignments == nil {
		a.RoleAssignments = make(map[AssessmentRole]string)
	}
	a.RoleAssignments[role] = userID
	a.UpdatedAt = log.Timestamp
	return log, nil
}

// Roles allowed to edit assessment fields outside of transitions.
var (
	metricEditors     = []AssessmentRole{RoleOwner, RoleCoordinator, RoleAuditor, RoleRespondent}
	assignmentEditors = []AssessmentRole{RoleOwner, RoleCoordinator}
)

func (e *Engine) checkFieldChange(a *Assessment, actor Actor, sink AuditSink, editors []AssessmentRole) error {
	if err := e.precheck(a, sink); err != nil {
		return err
	}
	if a.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrAssessmentClosed, a.Status)
	}
	if te := checkIdentity(actor); te != nil {
		return &RejectionError{Errors: []TransitionError{*te}}
	}
	for _, r := range editors {
		if checkRole(a, actor, r) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s", ErrForbidden, actor.Role)
}

func (e *Engine) precheck(a *Assessment, sink AuditSink) error {
	if a == nil {
		return ErrNoAssessment
	}
	if sink == nil {
		return ErrNoAuditSink
	}
	if !e.def.IsReachable(a.State()) {
		return fmt.Errorf("%w: %s/%s", ErrUnreachableState, a.Status, a.Phase)
	}
	return nil
}

// commit appends the audit record and only then applies next to a.
func (e *Engine) commit(ctx context.Context, a *Assessment, sink AuditSink, action AuditAction, actor Actor, ev Evidence, next Values, warnings []string) (*TransitionResult, error) {
	old := a.values()
	log := e.newAudit(a, action, actor, auditComments(ev.Comments, warnings))
	log.OldValues = &old
	log.NewValues = &next
	if err := sink.Append(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to append audit log: %w", err)
	}

	a.Status = next.Status
	a.Phase = next.Phase
	a.PreviousStatus = next.PreviousStatus
	a.UpdatedAt = log.Timestamp

	e.logger.Infow("assessment changed",
		"assessment_id", a.ID,
		"tenant_id", a.TenantID,
		"action", action,
		"from_status", old.Status,
		"from_phase", old.Phase,
		"to_status", next.Status,
		"to_phase", next.Phase,
		"user_id", actor.UserID,
	)
	return &TransitionResult{
		Success:   true,
		NewStatus: next.Status,
		NewPhase:  next.Phase,
		Warnings:  warnings,
		Audit:     log,
	}, nil
}

func (e *Engine) newAudit(a *Assessment, action AuditAction, actor Actor, comments string) *AuditLog {
	return &AuditLog{
		ID:           e.newID(),
		TenantID:     a.TenantID,
		AssessmentID: a.ID,
		Action:       action,
		UserID:       actor.UserID,
		UserRole:     actor.Role,
		Timestamp:    e.now().UTC(),
		Comments:     comments,
	}
}

func checkIdentity(actor Actor) *TransitionError {
	if actor.UserID == "" {
		return &TransitionError{Kind: KindInvalidIdentity, Message: "acting identity is missing"}
	}
	return nil
}

// checkRole passes holders of the universal permission. Everyone else must act in the
// required role, in the assessment's tenant, and be the user assigned that role on the assessment.
func checkRole(a *Assessment, actor Actor, required AssessmentRole) *TransitionError {
	if actor.Permissions.HasAll() {
		return nil
	}
	details := map[string]string{"required_role": string(required), "role": string(actor.Role)}
	if actor.TenantID != a.TenantID {
		return &TransitionError{Kind: KindInsufficientRole, Message: "actor belongs to another tenant", Details: details}
	}
	if actor.Role != required {
		return &TransitionError{
			Kind:    KindInsufficientRole,
			Message: fmt.Sprintf("requires role %s, acting as %s", required, actor.Role),
			Details: details,
		}
	}
	switch assigned := a.RoleAssignments[required]; {
	case assigned == "":
		return &TransitionError{
			Kind:    KindInsufficientRole,
			Message: fmt.Sprintf("role %s is not assigned on this assessment", required),
			Details: details,
		}
	case assigned != actor.UserID:
		return &TransitionError{
			Kind:    KindInsufficientRole,
			Message: fmt.Sprintf("role %s is assigned to another user", required),
			Details: details,
		}
	}
	return nil
}

func validationErrors(rules []ValidationRule) []TransitionError {
	errs := make([]TransitionError, 0, len(rules))
	for _, r := range rules {
		errs = append(errs, TransitionError{Kind: KindValidationFailed, Message: r.Message, Rule: r.ID})
	}
	return errs
}

func ruleMessages(rules []ValidationRule) []string {
	if len(rules) == 0 {
		return nil
	}
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, string(r.Type)+": "+r.Message)
	}
	return out
}

func auditComments(comments string, warnings []string) string {
	parts := make([]string, 0, len(warnings)+1)
	if c := strings.TrimSpace(comments); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, warnings...)
	return strings.Join(parts, "\n")
}

func actionForKind(k TransitionKind) AuditAction {
	switch k {
	case KindSuspend:
		return ActionSuspended
	case KindResume:
		return ActionResumed
	case KindReopen:
		return ActionReopened
	case KindCancel:
		return ActionCancelled
	}
	return ActionStatusChanged
}
