package workflow

import (
	"fmt"
	"strings"
)

// RuleType decides whether a failing rule blocks the transition.
type RuleType string

const (
	RuleMandatory RuleType = "mandatory"
	RuleWarning   RuleType = "warning"
	RuleInfo      RuleType = "info"
)

// RuleKind selects the check a rule performs.
type RuleKind string

const (
	RuleRoleAssigned           RuleKind = "role_assigned"
	RuleCommentsRequired       RuleKind = "comments_required"
	RuleAttachmentsRequired    RuleKind = "attachments_required"
	RuleAnswersPresent         RuleKind = "answers_present"
	RuleMinCompletion          RuleKind = "min_completion"
	RuleMinEvidence            RuleKind = "min_evidence"
	RuleNoOpenCriticalFindings RuleKind = "no_open_critical_findings"
)

// ValidationRule is one data-driven check attached to an edge.
type ValidationRule struct {
	ID      string
	Type    RuleType
	Kind    RuleKind
	Message string
	// Role is the role that must be assigned, for RuleRoleAssigned.
	Role AssessmentRole
	// Threshold is the minimum for RuleMinCompletion (fraction) and RuleMinEvidence (count).
	Threshold float64
}

func (r ValidationRule) validate() error {
	switch r.Type {
	case RuleMandatory, RuleWarning, RuleInfo:
	default:
		return fmt.Errorf("rule %q: unknown type %q", r.ID, r.Type)
	}
	switch r.Kind {
	case RuleRoleAssigned:
		if !IsKnownRole(r.Role) {
			return fmt.Errorf("rule %q: unknown role %q", r.ID, r.Role)
		}
	case RuleCommentsRequired, RuleAttachmentsRequired, RuleAnswersPresent,
		RuleMinCompletion, RuleMinEvidence, RuleNoOpenCriticalFindings:
	default:
		return fmt.Errorf("rule %q: unknown kind %q", r.ID, r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("rule of kind %q has no id", r.Kind)
	}
	return nil
}

// Check evaluates the rule against an assessment and the request evidence.
func (r ValidationRule) Check(a *Assessment, ev Evidence) bool {
	switch r.Kind {
	case RuleRoleAssigned:
		return a.RoleAssignments[r.Role] != ""
	case RuleCommentsRequired:
		return strings.TrimSpace(ev.Comments) != ""
	case RuleAttachmentsRequired:
		return len(ev.Attachments) > 0
	case RuleAnswersPresent:
		return a.Metrics.AnsweredQuestions > 0
	case RuleMinCompletion:
		return a.Metrics.Completion() >= r.Threshold
	case RuleMinEvidence:
		return float64(a.Metrics.EvidenceCount) >= r.Threshold
	case RuleNoOpenCriticalFindings:
		return a.Metrics.OpenCriticalFindings == 0
	}
	return false
}

// evaluateRules runs rules in declaration order and splits failures into blocking
// (mandatory) and non-blocking (warning, info).
func evaluateRules(rules []ValidationRule, a *Assessment, ev Evidence) (blocking, notices []ValidationRule) {
	for _, rule := range rules {
		if rule.Check(a, ev) {
			continue
		}
		if rule.Type == RuleMandatory {
			blocking = append(blocking, rule)
		} else {
			notices = append(notices, rule)
		}
	}
	return blocking, notices
}
