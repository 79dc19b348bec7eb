package workflow

import (
	"time"

	rbac "github.com/bohemiyan/grc-rbac"
	"github.com/bohemiyan/grc-rbac/quality"
)

// Status is the top-level lifecycle state of an assessment.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusPlanejado   Status = "planejado"
	StatusEmAndamento Status = "em_andamento"
	StatusEmRevisao   Status = "em_revisao"
	StatusRevisado    Status = "revisado"
	StatusConcluido   Status = "concluido"
	StatusCancelado   Status = "cancelado"
	StatusSuspenso    Status = "suspenso"
)

// IsTerminal reports whether s ends the default path.
func (s Status) IsTerminal() bool {
	return s == StatusConcluido || s == StatusCancelado
}

var allStatuses = []Status{
	StatusDraft, StatusPlanejado, StatusEmAndamento, StatusEmRevisao,
	StatusRevisado, StatusConcluido, StatusCancelado, StatusSuspenso,
}

// Phase is a workflow step nested inside a status.
type Phase string

const (
	PhasePreparacao   Phase = "preparacao"
	PhasePlanejamento Phase = "planejamento"
	PhaseColetaDados  Phase = "coleta_dados"
	PhaseAnalise      Phase = "analise"
	PhaseRevisao      Phase = "revisao"
	PhaseAprovacao    Phase = "aprovacao"
	PhaseRelatorio    Phase = "relatorio"
	PhaseFollowup     Phase = "followup"
)

var allPhases = []Phase{
	PhasePreparacao, PhasePlanejamento, PhaseColetaDados, PhaseAnalise,
	PhaseRevisao, PhaseAprovacao, PhaseRelatorio, PhaseFollowup,
}

// AssessmentRole is the part a user plays on one assessment.
type AssessmentRole string

const (
	RoleOwner       AssessmentRole = "owner"
	RoleCoordinator AssessmentRole = "coordinator"
	RoleAuditor     AssessmentRole = "auditor"
	RoleRespondent  AssessmentRole = "respondent"
	RoleReviewer    AssessmentRole = "reviewer"
	RoleApprover    AssessmentRole = "approver"
	RoleObserver    AssessmentRole = "observer"
)

var allRoles = []AssessmentRole{
	RoleOwner, RoleCoordinator, RoleAuditor, RoleRespondent, RoleReviewer, RoleApprover, RoleObserver,
}

// IsKnownRole reports whether r is a defined assessment role.
func IsKnownRole(r AssessmentRole) bool {
	for _, known := range allRoles {
		if known == r {
			return true
		}
	}
	return false
}

// State is a (status, phase) pair.
type State struct {
	Status Status `json:"status"`
	Phase  Phase  `json:"phase"`
}

// Assessment is the governed record moved through the workflow.
type Assessment struct {
	ID              string                    `gorm:"primaryKey;size:36" json:"id"`
	TenantID        string                    `gorm:"size:64;not null;index" json:"tenant_id"`
	Title           string                    `json:"title"`
	Status          Status                    `gorm:"size:32;not null" json:"status"`
	Phase           Phase                     `gorm:"size:32;not null" json:"phase"`
	PreviousStatus  Status                    `gorm:"size:32" json:"previous_status,omitempty"`
	Metrics         quality.Metrics           `gorm:"serializer:json" json:"metrics"`
	RoleAssignments map[AssessmentRole]string `gorm:"serializer:json" json:"role_assignments"`
	Version         int64                     `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// State returns the assessment's current (status, phase) pair.
func (a *Assessment) State() State {
	return State{Status: a.Status, Phase: a.Phase}
}

func (a *Assessment) values() Values {
	return Values{Status: a.Status, Phase: a.Phase, PreviousStatus: a.PreviousStatus}
}

// Actor is the caller requesting a workflow change.
type Actor struct {
	UserID      string
	TenantID    string
	Role        AssessmentRole
	Permissions rbac.PermissionSet
}

// ActorFrom builds an actor from a resolved identity acting in role.
func ActorFrom(res rbac.Resolution, role AssessmentRole) Actor {
	return Actor{
		UserID:      res.UserID,
		TenantID:    res.TenantID,
		Role:        role,
		Permissions: res.Permissions,
	}
}

// Evidence is the optional supporting material attached to a request.
type Evidence struct {
	Comments    string   `json:"comments,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Target   Status
	Actor    Actor
	Evidence Evidence
	// ExpectedVersion, when non-zero, must match the stored assessment version.
	ExpectedVersion int64
}

// PhaseRequest asks for a phase change inside the current status.
type PhaseRequest struct {
	Target          Phase
	Actor           Actor
	Evidence        Evidence
	ExpectedVersion int64
}
