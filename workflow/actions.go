package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ActionType is a side effect requested by an accepted edge.
type ActionType string

const (
	ActionNotify           ActionType = "notify"
	ActionAssignTask       ActionType = "assign_task"
	ActionGenerateReport   ActionType = "generate_report"
	ActionScheduleFollowup ActionType = "schedule_followup"
)

// AutomaticAction is run after an edge is accepted. Role names the recipient, when any.
type AutomaticAction struct {
	Type ActionType     `json:"type"`
	Role AssessmentRole `json:"role,omitempty"`
}

func validateActions(actions []AutomaticAction) error {
	for _, a := range actions {
		switch a.Type {
		case ActionNotify, ActionAssignTask, ActionGenerateReport, ActionScheduleFollowup:
		default:
			return fmt.Errorf("unknown action type %q", a.Type)
		}
		if a.Role != "" && !IsKnownRole(a.Role) {
			return fmt.Errorf("action %s: unknown role %q", a.Type, a.Role)
		}
	}
	return nil
}

// ActionDispatcher hands automatic actions to the collaborator that performs them.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, action AutomaticAction, assessment Assessment) error
}

// LogDispatcher records actions in the log and performs nothing else.
type LogDispatcher struct {
	Logger *zap.SugaredLogger
}

// Dispatch logs the action.
func (d LogDispatcher) Dispatch(_ context.Context, action AutomaticAction, a Assessment) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Infow("automatic action",
		"action", action.Type,
		"role", action.Role,
		"recipient", a.RoleAssignments[action.Role],
		"assessment_id", a.ID,
		"tenant_id", a.TenantID,
		"status", a.Status,
	)
	return nil
}

// dispatchAll runs each action, logging failures. Actions never undo an accepted change.
func dispatchAll(ctx context.Context, d ActionDispatcher, logger *zap.SugaredLogger, actions []AutomaticAction, a Assessment) {
	if d == nil {
		return
	}
	for _, action := range actions {
		if err := d.Dispatch(ctx, action, a); err != nil {
			logger.Warnw("automatic action failed", "action", action.Type, "assessment_id", a.ID, "error", err)
		}
	}
}
