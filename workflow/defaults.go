package workflow

// activeStatuses are the non-terminal statuses an assessment can be suspended from.
var activeStatuses = []Status{StatusDraft, StatusPlanejado, StatusEmAndamento, StatusEmRevisao, StatusRevisado}

func requireAssigned(role AssessmentRole) ValidationRule {
	return ValidationRule{
		ID:      "assigned_" + string(role),
		Type:    RuleMandatory,
		Kind:    RuleRoleAssigned,
		Role:    role,
		Message: "a " + string(role) + " must be assigned",
	}
}

func requireComments(t RuleType, message string) ValidationRule {
	return ValidationRule{ID: "comments", Type: t, Kind: RuleCommentsRequired, Message: message}
}

func noCriticalFindings() ValidationRule {
	return ValidationRule{
		ID:      "no_open_critical_findings",
		Type:    RuleWarning,
		Kind:    RuleNoOpenCriticalFindings,
		Message: "critical findings are still open",
	}
}

// DefaultTable returns the standard assessment workflow.
func DefaultTable() Table {
	t := Table{
		Initial: State{Status: StatusDraft, Phase: PhasePreparacao},
		Phases: map[Status][]Phase{
			StatusDraft:       {PhasePreparacao},
			StatusPlanejado:   {PhasePlanejamento},
			StatusEmAndamento: {PhaseColetaDados, PhaseAnalise},
			StatusEmRevisao:   {PhaseRevisao, PhaseAprovacao},
			StatusRevisado:    {PhaseRelatorio},
			StatusConcluido:   {PhaseFollowup},
		},
		Transitions: []Transition{
			{
				From: StatusDraft, To: StatusPlanejado,
				RequiredRole: RoleCoordinator, RequiredPhase: PhasePreparacao, EntryPhase: PhasePlanejamento,
				ValidationRules:  []ValidationRule{requireAssigned(RoleAuditor)},
				AutomaticActions: []AutomaticAction{{Type: ActionNotify, Role: RoleAuditor}},
			},
			{
				From: StatusPlanejado, To: StatusEmAndamento,
				RequiredRole: RoleCoordinator, RequiredPhase: PhasePlanejamento, EntryPhase: PhaseColetaDados,
				ValidationRules:  []ValidationRule{requireAssigned(RoleRespondent)},
				AutomaticActions: []AutomaticAction{{Type: ActionAssignTask, Role: RoleRespondent}},
			},
			{
				From: StatusEmAndamento, To: StatusEmRevisao,
				RequiredRole: RoleAuditor, RequiredPhase: PhaseAnalise, EntryPhase: PhaseRevisao,
				ValidationRules: []ValidationRule{
					{ID: "answers_present", Type: RuleMandatory, Kind: RuleAnswersPresent, Message: "no questions have been answered"},
					requireAssigned(RoleReviewer),
					{ID: "min_evidence", Type: RuleWarning, Kind: RuleMinEvidence, Threshold: 1, Message: "no evidence has been collected"},
					{ID: "min_completion", Type: RuleWarning, Kind: RuleMinCompletion, Threshold: 0.8, Message: "less than 80% of questions answered"},
				},
				AutomaticActions: []AutomaticAction{{Type: ActionNotify, Role: RoleReviewer}},
			},
			{
				From: StatusEmRevisao, To: StatusEmAndamento,
				RequiredRole: RoleReviewer, EntryPhase: PhaseColetaDados,
				ValidationRules:  []ValidationRule{requireComments(RuleMandatory, "returning for rework requires comments")},
				AutomaticActions: []AutomaticAction{{Type: ActionNotify, Role: RoleAuditor}},
			},
			{
				From: StatusEmRevisao, To: StatusRevisado,
				RequiredRole: RoleReviewer, RequiredPhase: PhaseAprovacao, EntryPhase: PhaseRelatorio,
				ValidationRules:  []ValidationRule{requireAssigned(RoleApprover), noCriticalFindings()},
				AutomaticActions: []AutomaticAction{{Type: ActionNotify, Role: RoleApprover}},
			},
			{
				From: StatusRevisado, To: StatusConcluido,
				RequiredRole: RoleApprover, RequiredPhase: PhaseRelatorio, EntryPhase: PhaseFollowup,
				ValidationRules: []ValidationRule{
					noCriticalFindings(),
					requireComments(RuleInfo, "no closing comments were given"),
				},
				AutomaticActions: []AutomaticAction{
					{Type: ActionGenerateReport},
					{Type: ActionNotify, Role: RoleOwner},
					{Type: ActionScheduleFollowup, Role: RoleOwner},
				},
			},
			{
				From: StatusRevisado, To: StatusEmRevisao,
				RequiredRole: RoleApprover, EntryPhase: PhaseRevisao,
				ValidationRules: []ValidationRule{requireComments(RuleMandatory, "returning for review requires comments")},
			},
			{
				From: StatusConcluido, To: StatusEmRevisao, Kind: KindReopen,
				RequiredRole: RoleOwner, EntryPhase: PhaseRevisao,
				ValidationRules:  []ValidationRule{requireComments(RuleMandatory, "reopening requires comments")},
				AutomaticActions: []AutomaticAction{{Type: ActionNotify, Role: RoleReviewer}},
			},
		},
		PhaseTransitions: []PhaseTransition{
			{
				Statuses: []Status{StatusEmAndamento}, From: PhaseColetaDados, To: PhaseAnalise,
				RequiredRole: RoleAuditor,
				ValidationRules: []ValidationRule{
					{ID: "answers_present", Type: RuleMandatory, Kind: RuleAnswersPresent, Message: "no questions have been answered"},
				},
			},
			{
				Statuses: []Status{StatusEmAndamento}, From: PhaseAnalise, To: PhaseColetaDados,
				RequiredRole: RoleAuditor,
			},
			{
				Statuses: []Status{StatusEmRevisao}, From: PhaseRevisao, To: PhaseAprovacao,
				RequiredRole: RoleReviewer,
			},
			{
				Statuses: []Status{StatusEmRevisao}, From: PhaseAprovacao, To: PhaseRevisao,
				RequiredRole:    RoleApprover,
				ValidationRules: []ValidationRule{requireComments(RuleMandatory, "returning to review requires comments")},
			},
		},
	}

	for _, s := range activeStatuses {
		t.Transitions = append(t.Transitions,
			Transition{
				From: s, To: StatusSuspenso, Kind: KindSuspend, RequiredRole: RoleCoordinator,
				ValidationRules: []ValidationRule{requireComments(RuleWarning, "suspending without comments")},
			},
			Transition{
				From: StatusSuspenso, To: s, Kind: KindResume, RequiredRole: RoleCoordinator,
			},
		)
	}
	for _, s := range append(append([]Status(nil), activeStatuses...), StatusSuspenso) {
		t.Transitions = append(t.Transitions, Transition{
			From: s, To: StatusCancelado, Kind: KindCancel, RequiredRole: RoleOwner,
			ValidationRules:  []ValidationRule{requireComments(RuleMandatory, "cancelling requires comments")},
			AutomaticActions: []AutomaticAction{{Type: ActionNotify, Role: RoleCoordinator}},
		})
	}
	return t
}

var defaultDefinition = MustDefinition(DefaultTable())

// DefaultDefinition returns the validated standard workflow.
func DefaultDefinition() *Definition {
	return defaultDefinition
}
