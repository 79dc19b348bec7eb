package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	rbac "github.com/bohemiyan/grc-rbac"
	"github.com/bohemiyan/grc-rbac/quality"
)

const tenantA = "tenant-a"

var team = map[AssessmentRole]string{
	RoleOwner:       "owner-1",
	RoleCoordinator: "coord-1",
	RoleAuditor:     "aud-1",
	RoleRespondent:  "resp-1",
	RoleReviewer:    "rev-1",
	RoleApprover:    "appr-1",
	RoleObserver:    "obs-1",
}

func goodMetrics() quality.Metrics {
	return quality.Metrics{
		TotalQuestions:    10,
		AnsweredQuestions: 10,
		EvidenceCount:     3,
		ConfidenceLevel:   0.9,
		Checks: []quality.Check{
			{ID: "completeness", Category: quality.CategoryCompleteness, Score: 9, MaxScore: 10},
		},
	}
}

func newAssessment(status Status, phase Phase) *Assessment {
	roles := make(map[AssessmentRole]string, len(team))
	for r, u := range team {
		roles[r] = u
	}
	return &Assessment{
		ID:              "asm-1",
		TenantID:        tenantA,
		Title:           "Vendor review",
		Status:          status,
		Phase:           phase,
		Metrics:         goodMetrics(),
		RoleAssignments: roles,
		Version:         1,
	}
}

func actorAs(role AssessmentRole) Actor {
	return Actor{
		UserID:      team[role],
		TenantID:    tenantA,
		Role:        role,
		Permissions: rbac.NewPermissionSet(rbac.PermRead, rbac.PermWrite, rbac.PermAssessmentTransition),
	}
}

func platformAdmin() Actor {
	return Actor{
		UserID:      "root",
		TenantID:    "ops",
		Role:        RoleObserver,
		Permissions: rbac.DefaultCatalog().Universal(),
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	var n int
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	base := []Option{
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("audit-%d", n) }),
	}
	return NewEngine(DefaultDefinition(), append(base, opts...)...)
}

func assertRejected(t *testing.T, res *TransitionResult, err error, kind ErrorKind) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, kind, res.Errors[0].Kind)
	assert.Nil(t, res.Audit)
}

func TestRespondentCannotSubmitForReview(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusEmAndamento, PhaseAnalise)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target: StatusEmRevisao,
		Actor:  actorAs(RoleRespondent),
	}, sink)

	assertRejected(t, res, err, KindInsufficientRole)
	assert.ErrorIs(t, res.Err(), ErrInsufficientRole)
	assert.Equal(t, StatusEmAndamento, a.Status)
	assert.Equal(t, PhaseAnalise, a.Phase)
	assert.Zero(t, sink.Len())
}

func TestSubmitForReviewRequiresAnalysisPhase(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusEmAndamento, PhaseColetaDados)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target: StatusEmRevisao,
		Actor:  actorAs(RoleAuditor),
	}, sink)

	assertRejected(t, res, err, KindPhaseMismatch)
	assert.Equal(t, "analise", res.Errors[0].Details["required_phase"])
	assert.Equal(t, PhaseColetaDados, a.Phase)
	assert.Zero(t, sink.Len())
}

func TestPlatformAdminOverridesQualityGate(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusRevisado, PhaseRelatorio)
	a.Metrics.Checks = []quality.Check{{ID: "scoring", Category: quality.CategoryScoring, Score: 2, MaxScore: 10}}

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target:   StatusConcluido,
		Actor:    platformAdmin(),
		Evidence: Evidence{Comments: "closing for the audit deadline"},
	}, sink)

	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.True(t, res.OverrideApplied)
	require.NotNil(t, res.Quality)
	assert.Equal(t, quality.StatusFailed, res.Quality.Status)
	assert.Equal(t, StatusConcluido, a.Status)
	assert.Equal(t, PhaseFollowup, a.Phase)

	entries := sink.Entries(a.ID)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Comments, "quality gate overridden")
	assert.Contains(t, entries[0].Comments, "closing for the audit deadline")
	assert.Equal(t, "root", entries[0].UserID)
}

func TestLowCompletionFailsQualityGate(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusRevisado, PhaseRelatorio)
	a.Metrics.AnsweredQuestions = 5

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target: StatusConcluido,
		Actor:  actorAs(RoleApprover),
	}, sink)

	assertRejected(t, res, err, KindQualityGateFailed)
	assert.ErrorIs(t, res.Err(), ErrQualityGateFailed)
	require.NotNil(t, res.Quality)
	assert.InDelta(t, 0.5, res.Quality.CompletionPercentage, 1e-9)
	assert.Equal(t, StatusRevisado, a.Status)
	assert.Zero(t, sink.Len())
}

func TestQualityGateWarningProceeds(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusRevisado, PhaseRelatorio)
	a.Metrics.TotalQuestions = 100
	a.Metrics.AnsweredQuestions = 78

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target:   StatusConcluido,
		Actor:    actorAs(RoleApprover),
		Evidence: Evidence{Comments: "approved"},
	}, sink)

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.False(t, res.OverrideApplied)
	assert.Equal(t, quality.StatusWarning, res.Quality.Status)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "quality gate warning")
}

func TestUnknownTransitionIsRejected(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()

	cases := []struct {
		name   string
		status Status
		phase  Phase
		target Status
	}{
		{"skip planning", StatusDraft, PhasePreparacao, StatusEmAndamento},
		{"leave cancelled", StatusCancelado, PhasePreparacao, StatusDraft},
		{"conclude from review", StatusEmRevisao, PhaseAprovacao, StatusConcluido},
		{"suspend concluded", StatusConcluido, PhaseFollowup, StatusSuspenso},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAssessment(tc.status, tc.phase)
			res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
				Target: tc.target,
				Actor:  platformAdmin(),
			}, sink)

			assertRejected(t, res, err, KindUnknownTransition)
			assert.Equal(t, tc.status, a.Status)
		})
	}
	assert.Zero(t, sink.Len())
}

func TestMandatoryRulesAccumulate(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusEmAndamento, PhaseAnalise)
	a.Metrics.AnsweredQuestions = 0
	delete(a.RoleAssignments, RoleReviewer)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target: StatusEmRevisao,
		Actor:  actorAs(RoleAuditor),
	}, sink)

	assertRejected(t, res, err, KindValidationFailed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "answers_present", res.Errors[0].Rule)
	assert.Equal(t, "assigned_reviewer", res.Errors[1].Rule)
	assert.ErrorIs(t, res.Err(), ErrValidationFailed)
	assert.Zero(t, sink.Len())
}

func TestWarningRulesDoNotBlock(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusEmAndamento, PhaseAnalise)
	a.Metrics.EvidenceCount = 0
	a.Metrics.AnsweredQuestions = 5

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target: StatusEmRevisao,
		Actor:  actorAs(RoleAuditor),
	}, sink)

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, []string{
		"warning: no evidence has been collected",
		"warning: less than 80% of questions answered",
	}, res.Warnings)
	entries := sink.Entries(a.ID)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Comments, "no evidence has been collected")
}

func TestAssignedRoleMustMatchActor(t *testing.T) {
	e := newTestEngine(t)
	a := newAssessment(StatusDraft, PhasePreparacao)
	actor := actorAs(RoleCoordinator)
	actor.UserID = "someone-else"

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusPlanejado, Actor: actor}, NewMemoryAuditLog())

	assertRejected(t, res, err, KindInsufficientRole)
	assert.Contains(t, res.Errors[0].Message, "assigned to another user")
}

func TestUnassignedRoleCannotBeClaimed(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusDraft, PhasePreparacao)
	delete(a.RoleAssignments, RoleCoordinator)
	claimer := actorAs(RoleCoordinator)
	claimer.UserID = "analyst-9"

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusPlanejado, Actor: claimer}, sink)
	assertRejected(t, res, err, KindInsufficientRole)
	assert.Contains(t, res.Errors[0].Message, "not assigned")

	_, err = e.AssignRole(context.Background(), a, claimer, RoleAuditor, "analyst-9", sink)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "aud-1", a.RoleAssignments[RoleAuditor])
	assert.Zero(t, sink.Len())

	res, err = e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusPlanejado, Actor: platformAdmin()}, sink)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestActorFromOtherTenantIsRejected(t *testing.T) {
	e := newTestEngine(t)
	a := newAssessment(StatusDraft, PhasePreparacao)
	actor := actorAs(RoleCoordinator)
	actor.TenantID = "tenant-b"

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusPlanejado, Actor: actor}, NewMemoryAuditLog())

	assertRejected(t, res, err, KindInsufficientRole)
}

func TestMissingIdentityIsRejected(t *testing.T) {
	e := newTestEngine(t)
	a := newAssessment(StatusDraft, PhasePreparacao)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusPlanejado}, NewMemoryAuditLog())

	assertRejected(t, res, err, KindInvalidIdentity)
	assert.ErrorIs(t, res.Err(), ErrInvalidIdentity)
}

func TestAcceptedTransitionWritesOneAuditEntry(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusDraft, PhasePreparacao)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target:   StatusPlanejado,
		Actor:    actorAs(RoleCoordinator),
		Evidence: Evidence{Comments: "scope agreed"},
	}, sink)

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, StatusPlanejado, res.NewStatus)
	assert.Equal(t, PhasePlanejamento, res.NewPhase)
	assert.Equal(t, []AutomaticAction{{Type: ActionNotify, Role: RoleAuditor}}, res.Actions)

	entries := sink.Entries(a.ID)
	require.Len(t, entries, 1)
	log := entries[0]
	assert.Equal(t, "audit-1", log.ID)
	assert.Equal(t, ActionStatusChanged, log.Action)
	assert.Equal(t, "coord-1", log.UserID)
	assert.Equal(t, RoleCoordinator, log.UserRole)
	assert.Equal(t, tenantA, log.TenantID)
	assert.Equal(t, "scope agreed", log.Comments)
	assert.Equal(t, &Values{Status: StatusDraft, Phase: PhasePreparacao}, log.OldValues)
	assert.Equal(t, &Values{Status: StatusPlanejado, Phase: PhasePlanejamento}, log.NewValues)
}

func TestFullLifecycle(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusDraft, PhasePreparacao)
	ctx := context.Background()

	steps := []struct {
		role  AssessmentRole
		to    Status
		phase Phase
	}{
		{RoleCoordinator, StatusPlanejado, ""},
		{RoleCoordinator, StatusEmAndamento, ""},
		{RoleAuditor, "", PhaseAnalise},
		{RoleAuditor, StatusEmRevisao, ""},
		{RoleReviewer, "", PhaseAprovacao},
		{RoleReviewer, StatusRevisado, ""},
		{RoleApprover, StatusConcluido, ""},
	}
	for i, step := range steps {
		before := a.State()
		var (
			res *TransitionResult
			err error
		)
		if step.to != "" {
			res, err = e.RequestTransition(ctx, a, TransitionRequest{Target: step.to, Actor: actorAs(step.role)}, sink)
		} else {
			res, err = e.AdvancePhase(ctx, a, PhaseRequest{Target: step.phase, Actor: actorAs(step.role)}, sink)
		}
		require.NoError(t, err)
		require.True(t, res.Success, "step %d: %v", i, res.Errors)

		entries := sink.Entries(a.ID)
		require.Len(t, entries, i+1)
		last := entries[i]
		assert.Equal(t, before.Status, last.OldValues.Status)
		assert.Equal(t, before.Phase, last.OldValues.Phase)
		assert.Equal(t, a.Status, last.NewValues.Status)
		assert.Equal(t, a.Phase, last.NewValues.Phase)
		assert.True(t, e.Definition().IsReachable(a.State()))
	}
	assert.Equal(t, State{Status: StatusConcluido, Phase: PhaseFollowup}, a.State())
}

func TestSuspendResumeRoundTrip(t *testing.T) {
	states := []State{
		{StatusDraft, PhasePreparacao},
		{StatusPlanejado, PhasePlanejamento},
		{StatusEmAndamento, PhaseColetaDados},
		{StatusEmAndamento, PhaseAnalise},
		{StatusEmRevisao, PhaseRevisao},
		{StatusEmRevisao, PhaseAprovacao},
		{StatusRevisado, PhaseRelatorio},
	}
	for _, st := range states {
		t.Run(string(st.Status)+"/"+string(st.Phase), func(t *testing.T) {
			e := newTestEngine(t)
			sink := NewMemoryAuditLog()
			a := newAssessment(st.Status, st.Phase)
			ctx := context.Background()

			res, err := e.RequestTransition(ctx, a, TransitionRequest{
				Target:   StatusSuspenso,
				Actor:    actorAs(RoleCoordinator),
				Evidence: Evidence{Comments: "waiting on vendor"},
			}, sink)
			require.NoError(t, err)
			require.True(t, res.Success)
			assert.Equal(t, StatusSuspenso, a.Status)
			assert.Equal(t, st.Status, a.PreviousStatus)

			res, err = e.Resume(ctx, a, actorAs(RoleCoordinator), Evidence{}, sink)
			require.NoError(t, err)
			require.True(t, res.Success, "errors: %v", res.Errors)
			assert.Equal(t, st, a.State())
			assert.Empty(t, a.PreviousStatus)

			entries := sink.Entries(a.ID)
			require.Len(t, entries, 2)
			assert.Equal(t, ActionSuspended, entries[0].Action)
			assert.Equal(t, st.Status, entries[0].NewValues.PreviousStatus)
			assert.Equal(t, ActionResumed, entries[1].Action)
			assert.Equal(t, st.Status, entries[1].OldValues.PreviousStatus)
		})
	}
}

func TestResumeToOtherStatusIsRejected(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusSuspenso, PhaseAnalise)
	a.PreviousStatus = StatusEmAndamento

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target: StatusDraft,
		Actor:  actorAs(RoleCoordinator),
	}, sink)

	assertRejected(t, res, err, KindUnknownTransition)
	assert.Equal(t, StatusSuspenso, a.Status)

	res, err = e.Resume(context.Background(), newAssessment(StatusEmAndamento, PhaseAnalise), actorAs(RoleCoordinator), Evidence{}, sink)
	assertRejected(t, res, err, KindUnknownTransition)
	assert.Zero(t, sink.Len())
}

func TestCancelRequiresComments(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusPlanejado, PhasePlanejamento)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusCancelado, Actor: actorAs(RoleOwner)}, sink)
	assertRejected(t, res, err, KindValidationFailed)
	assert.Equal(t, "comments", res.Errors[0].Rule)

	res, err = e.RequestTransition(context.Background(), a, TransitionRequest{
		Target:   StatusCancelado,
		Actor:    actorAs(RoleOwner),
		Evidence: Evidence{Comments: "vendor offboarded"},
	}, sink)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, StatusCancelado, a.Status)
	assert.Equal(t, ActionCancelled, sink.Entries(a.ID)[0].Action)
}

func TestReopenConcluded(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusConcluido, PhaseFollowup)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target:   StatusEmRevisao,
		Actor:    actorAs(RoleOwner),
		Evidence: Evidence{Comments: "regulator asked for more detail"},
	}, sink)

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, State{StatusEmRevisao, PhaseRevisao}, a.State())
	assert.Equal(t, ActionReopened, sink.Entries(a.ID)[0].Action)
}

func TestAdvancePhase(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("unknown phase edge", func(t *testing.T) {
		a := newAssessment(StatusEmAndamento, PhaseColetaDados)
		res, err := e.AdvancePhase(ctx, a, PhaseRequest{Target: PhaseRelatorio, Actor: actorAs(RoleAuditor)}, NewMemoryAuditLog())
		assertRejected(t, res, err, KindUnknownTransition)
	})

	t.Run("wrong role", func(t *testing.T) {
		a := newAssessment(StatusEmAndamento, PhaseColetaDados)
		res, err := e.AdvancePhase(ctx, a, PhaseRequest{Target: PhaseAnalise, Actor: actorAs(RoleRespondent)}, NewMemoryAuditLog())
		assertRejected(t, res, err, KindInsufficientRole)
	})

	t.Run("rules gate phase edges", func(t *testing.T) {
		a := newAssessment(StatusEmAndamento, PhaseColetaDados)
		a.Metrics.AnsweredQuestions = 0
		res, err := e.AdvancePhase(ctx, a, PhaseRequest{Target: PhaseAnalise, Actor: actorAs(RoleAuditor)}, NewMemoryAuditLog())
		assertRejected(t, res, err, KindValidationFailed)
		assert.Equal(t, PhaseColetaDados, a.Phase)
	})

	t.Run("accepted", func(t *testing.T) {
		sink := NewMemoryAuditLog()
		a := newAssessment(StatusEmAndamento, PhaseColetaDados)
		res, err := e.AdvancePhase(ctx, a, PhaseRequest{Target: PhaseAnalise, Actor: actorAs(RoleAuditor)}, sink)
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.Equal(t, PhaseAnalise, a.Phase)
		entries := sink.Entries(a.ID)
		require.Len(t, entries, 1)
		assert.Equal(t, ActionPhaseChanged, entries[0].Action)
		assert.Equal(t, &Values{Status: StatusEmAndamento, Phase: PhaseColetaDados}, entries[0].OldValues)
		assert.Equal(t, &Values{Status: StatusEmAndamento, Phase: PhaseAnalise}, entries[0].NewValues)
	})
}

func TestUnreachableStateIsAFault(t *testing.T) {
	e := newTestEngine(t)
	a := newAssessment(StatusDraft, PhaseRelatorio)

	_, err := e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusPlanejado, Actor: actorAs(RoleCoordinator)}, NewMemoryAuditLog())
	assert.ErrorIs(t, err, ErrUnreachableState)

	_, err = e.RequestTransition(context.Background(), nil, TransitionRequest{}, NewMemoryAuditLog())
	assert.ErrorIs(t, err, ErrNoAssessment)

	_, err = e.RequestTransition(context.Background(), newAssessment(StatusDraft, PhasePreparacao), TransitionRequest{}, nil)
	assert.ErrorIs(t, err, ErrNoAuditSink)
}

type failingSink struct{}

func (failingSink) Append(context.Context, *AuditLog) error { return errors.New("disk full") }

func TestSinkFailureLeavesAssessmentUnchanged(t *testing.T) {
	e := newTestEngine(t)
	a := newAssessment(StatusDraft, PhasePreparacao)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{Target: StatusPlanejado, Actor: actorAs(RoleCoordinator)}, failingSink{})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, State{StatusDraft, PhasePreparacao}, a.State())
}

type recordingDispatcher struct {
	mu      sync.Mutex
	actions []AutomaticAction
	fail    bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, action AutomaticAction, _ Assessment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
	if d.fail {
		return errors.New("mailer down")
	}
	return nil
}

func TestAutomaticActionsAreDispatched(t *testing.T) {
	d := &recordingDispatcher{fail: true}
	e := newTestEngine(t, WithDispatcher(d))
	a := newAssessment(StatusRevisado, PhaseRelatorio)

	res, err := e.RequestTransition(context.Background(), a, TransitionRequest{
		Target:   StatusConcluido,
		Actor:    actorAs(RoleApprover),
		Evidence: Evidence{Comments: "done"},
	}, NewMemoryAuditLog())

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, []AutomaticAction{
		{Type: ActionGenerateReport},
		{Type: ActionNotify, Role: RoleOwner},
		{Type: ActionScheduleFollowup, Role: RoleOwner},
	}, d.actions)
}

func TestUpdateMetrics(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("respondent may update", func(t *testing.T) {
		sink := NewMemoryAuditLog()
		a := newAssessment(StatusEmAndamento, PhaseColetaDados)
		updated := goodMetrics()
		updated.AnsweredQuestions = 4

		log, err := e.UpdateMetrics(ctx, a, actorAs(RoleRespondent), updated, sink)
		require.NoError(t, err)
		assert.Equal(t, ActionMetricsUpdated, log.Action)
		assert.Equal(t, 10, log.OldValues.Metrics.AnsweredQuestions)
		assert.Equal(t, 4, log.NewValues.Metrics.AnsweredQuestions)
		assert.Equal(t, 4, a.Metrics.AnsweredQuestions)
		assert.Equal(t, 1, sink.Len())
	})

	t.Run("invalid figures are rejected", func(t *testing.T) {
		sink := NewMemoryAuditLog()
		a := newAssessment(StatusEmAndamento, PhaseColetaDados)
		inflated := quality.Metrics{
			TotalQuestions:    10,
			AnsweredQuestions: 40,
			ConfidenceLevel:   0.9,
			Checks: []quality.Check{
				{ID: "zero", Category: quality.CategoryScoring, Score: 0, MaxScore: 10},
				{ID: "inflated", Category: quality.CategoryScoring, Score: 50, MaxScore: 10},
			},
		}

		_, err := e.UpdateMetrics(ctx, a, actorAs(RoleRespondent), inflated, sink)
		assert.ErrorIs(t, err, rbac.ErrInvalidInput)
		assert.ErrorIs(t, err, quality.ErrInvalidMetrics)
		assert.Equal(t, goodMetrics(), a.Metrics)
		assert.Zero(t, sink.Len())
	})

	t.Run("observer may not", func(t *testing.T) {
		a := newAssessment(StatusEmAndamento, PhaseColetaDados)
		_, err := e.UpdateMetrics(ctx, a, actorAs(RoleObserver), quality.Metrics{}, NewMemoryAuditLog())
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("closed assessment", func(t *testing.T) {
		a := newAssessment(StatusConcluido, PhaseFollowup)
		_, err := e.UpdateMetrics(ctx, a, actorAs(RoleOwner), quality.Metrics{}, NewMemoryAuditLog())
		assert.ErrorIs(t, err, ErrAssessmentClosed)
	})
}

func TestAssignRole(t *testing.T) {
	e := newTestEngine(t)
	sink := NewMemoryAuditLog()
	a := newAssessment(StatusDraft, PhasePreparacao)

	log, err := e.AssignRole(context.Background(), a, actorAs(RoleOwner), RoleAuditor, "aud-2", sink)
	require.NoError(t, err)
	assert.Equal(t, &Values{Assignment: &Assignment{Role: RoleAuditor, UserID: "aud-1"}}, log.OldValues)
	assert.Equal(t, &Values{Assignment: &Assignment{Role: RoleAuditor, UserID: "aud-2"}}, log.NewValues)
	assert.Equal(t, "aud-2", a.RoleAssignments[RoleAuditor])

	_, err = e.AssignRole(context.Background(), a, actorAs(RoleOwner), "janitor", "x", sink)
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)

	_, err = e.AssignRole(context.Background(), a, actorAs(RoleAuditor), RoleReviewer, "x", sink)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, sink.Len())
}
