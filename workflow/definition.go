package workflow

import (
	"errors"
	"fmt"
)

// TransitionKind tags the special status edges.
type TransitionKind string

const (
	KindStandard TransitionKind = "standard"
	KindSuspend  TransitionKind = "suspend"
	KindResume   TransitionKind = "resume"
	KindReopen   TransitionKind = "reopen"
	KindCancel   TransitionKind = "cancel"
)

// Transition is one status edge.
type Transition struct {
	From         Status
	To           Status
	RequiredRole AssessmentRole
	// RequiredPhase, when set, must equal the assessment phase.
	RequiredPhase Phase
	// EntryPhase is the phase held after the edge. Empty keeps the current phase.
	EntryPhase       Phase
	Kind             TransitionKind
	ValidationRules  []ValidationRule
	AutomaticActions []AutomaticAction
}

// PhaseTransition is one phase edge inside the listed statuses.
type PhaseTransition struct {
	Statuses         []Status
	From             Phase
	To               Phase
	RequiredRole     AssessmentRole
	ValidationRules  []ValidationRule
	AutomaticActions []AutomaticAction
}

// Table is the raw data a Definition is built from.
type Table struct {
	Initial State
	// Phases lists the phases allowed in each status. A status missing from the map allows any phase.
	Phases           map[Status][]Phase
	Transitions      []Transition
	PhaseTransitions []PhaseTransition
}

type edgeKey struct {
	from, to Status
}

type phaseKey struct {
	status   Status
	from, to Phase
}

// Definition is a validated, immutable workflow table.
type Definition struct {
	initial     State
	phases      map[Status]map[Phase]bool
	transitions []Transition
	edges       map[edgeKey]Transition
	phaseEdges  map[phaseKey]PhaseTransition
	reachable   map[State]bool
}

// NewDefinition validates t and indexes its edges.
func NewDefinition(t Table) (*Definition, error) {
	d := &Definition{
		initial:    t.Initial,
		phases:     make(map[Status]map[Phase]bool, len(t.Phases)),
		edges:      make(map[edgeKey]Transition, len(t.Transitions)),
		phaseEdges: make(map[phaseKey]PhaseTransition),
	}

	for status, phases := range t.Phases {
		if !knownStatus(status) {
			return nil, fmt.Errorf("phases: unknown status %q", status)
		}
		set := make(map[Phase]bool, len(phases))
		for _, p := range phases {
			if !knownPhase(p) {
				return nil, fmt.Errorf("phases of %s: unknown phase %q", status, p)
			}
			set[p] = true
		}
		d.phases[status] = set
	}

	if !knownStatus(t.Initial.Status) || !knownPhase(t.Initial.Phase) {
		return nil, fmt.Errorf("initial state %v is not a known state", t.Initial)
	}
	if !d.AllowsPhase(t.Initial.Status, t.Initial.Phase) {
		return nil, fmt.Errorf("initial phase %s not allowed in %s", t.Initial.Phase, t.Initial.Status)
	}

	for _, tr := range t.Transitions {
		if err := d.addTransition(tr); err != nil {
			return nil, err
		}
	}
	for _, pt := range t.PhaseTransitions {
		if err := d.addPhaseTransition(pt); err != nil {
			return nil, err
		}
	}

	d.reachable = d.computeReachable()
	return d, nil
}

// MustDefinition is NewDefinition that panics on a malformed table.
func MustDefinition(t Table) *Definition {
	d, err := NewDefinition(t)
	if err != nil {
		panic(fmt.Sprintf("workflow: invalid definition: %v", err))
	}
	return d
}

func (d *Definition) addTransition(tr Transition) error {
	name := fmt.Sprintf("%s->%s", tr.From, tr.To)
	if !knownStatus(tr.From) || !knownStatus(tr.To) {
		return fmt.Errorf("transition %s: unknown status", name)
	}
	if tr.From == tr.To {
		return fmt.Errorf("transition %s: self loop", name)
	}
	if !IsKnownRole(tr.RequiredRole) {
		return fmt.Errorf("transition %s: unknown role %q", name, tr.RequiredRole)
	}
	if _, dup := d.edges[edgeKey{tr.From, tr.To}]; dup {
		return fmt.Errorf("transition %s: duplicate edge", name)
	}
	if tr.Kind == "" {
		tr.Kind = KindStandard
	}

	switch tr.Kind {
	case KindStandard:
		if tr.To == StatusSuspenso || tr.From == StatusSuspenso {
			return fmt.Errorf("transition %s: suspended state needs a suspend, resume or cancel edge", name)
		}
	case KindSuspend:
		if tr.To != StatusSuspenso {
			return fmt.Errorf("transition %s: suspend must target %s", name, StatusSuspenso)
		}
		if tr.EntryPhase != "" {
			return fmt.Errorf("transition %s: suspend keeps the phase", name)
		}
	case KindResume:
		if tr.From != StatusSuspenso {
			return fmt.Errorf("transition %s: resume must leave %s", name, StatusSuspenso)
		}
		if tr.EntryPhase != "" {
			return fmt.Errorf("transition %s: resume keeps the phase", name)
		}
	case KindReopen:
		if !tr.From.IsTerminal() {
			return fmt.Errorf("transition %s: reopen must leave a terminal status", name)
		}
	case KindCancel:
		if tr.To != StatusCancelado {
			return fmt.Errorf("transition %s: cancel must target %s", name, StatusCancelado)
		}
	default:
		return fmt.Errorf("transition %s: unknown kind %q", name, tr.Kind)
	}
	if tr.From.IsTerminal() && tr.Kind != KindReopen {
		return fmt.Errorf("transition %s: terminal status only allows reopen", name)
	}

	if tr.RequiredPhase != "" {
		if !knownPhase(tr.RequiredPhase) || !d.AllowsPhase(tr.From, tr.RequiredPhase) {
			return fmt.Errorf("transition %s: required phase %q not allowed in %s", name, tr.RequiredPhase, tr.From)
		}
	}
	if tr.EntryPhase != "" {
		if !knownPhase(tr.EntryPhase) || !d.AllowsPhase(tr.To, tr.EntryPhase) {
			return fmt.Errorf("transition %s: entry phase %q not allowed in %s", name, tr.EntryPhase, tr.To)
		}
	}
	if err := validateRules(tr.ValidationRules); err != nil {
		return fmt.Errorf("transition %s: %w", name, err)
	}
	if err := validateActions(tr.AutomaticActions); err != nil {
		return fmt.Errorf("transition %s: %w", name, err)
	}

	d.edges[edgeKey{tr.From, tr.To}] = tr
	d.transitions = append(d.transitions, tr)
	return nil
}

func (d *Definition) addPhaseTransition(pt PhaseTransition) error {
	name := fmt.Sprintf("phase %s->%s", pt.From, pt.To)
	if !knownPhase(pt.From) || !knownPhase(pt.To) || pt.From == pt.To {
		return fmt.Errorf("%s: invalid phases", name)
	}
	if !IsKnownRole(pt.RequiredRole) {
		return fmt.Errorf("%s: unknown role %q", name, pt.RequiredRole)
	}
	if len(pt.Statuses) == 0 {
		return fmt.Errorf("%s: no statuses", name)
	}
	if err := validateRules(pt.ValidationRules); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := validateActions(pt.AutomaticActions); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range pt.Statuses {
		if !knownStatus(s) || s.IsTerminal() || s == StatusSuspenso {
			return fmt.Errorf("%s: phases cannot move in status %q", name, s)
		}
		if !d.AllowsPhase(s, pt.From) || !d.AllowsPhase(s, pt.To) {
			return fmt.Errorf("%s: phases not allowed in %s", name, s)
		}
		key := phaseKey{s, pt.From, pt.To}
		if _, dup := d.phaseEdges[key]; dup {
			return fmt.Errorf("%s: duplicate edge in %s", name, s)
		}
		d.phaseEdges[key] = pt
	}
	return nil
}

func validateRules(rules []ValidationRule) error {
	seen := make(map[string]bool, len(rules))
	var errs []error
	for _, r := range rules {
		if err := r.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("rule %q declared twice", r.ID))
		}
		seen[r.ID] = true
	}
	return errors.Join(errs...)
}

// computeReachable walks every edge from the initial state.
func (d *Definition) computeReachable() map[State]bool {
	seen := map[State]bool{d.initial: true}
	queue := []State{d.initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range d.successors(cur) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func (d *Definition) successors(s State) []State {
	var out []State
	for _, tr := range d.transitions {
		if tr.From != s.Status {
			continue
		}
		if tr.RequiredPhase != "" && tr.RequiredPhase != s.Phase {
			continue
		}
		phase := s.Phase
		if tr.EntryPhase != "" {
			phase = tr.EntryPhase
		}
		if !d.AllowsPhase(tr.To, phase) {
			continue
		}
		out = append(out, State{Status: tr.To, Phase: phase})
	}
	for key := range d.phaseEdges {
		if key.status == s.Status && key.from == s.Phase {
			out = append(out, State{Status: s.Status, Phase: key.to})
		}
	}
	return out
}

// Initial returns the state new assessments start in.
func (d *Definition) Initial() State { return d.initial }

// Lookup returns the status edge from -> to.
func (d *Definition) Lookup(from, to Status) (Transition, bool) {
	tr, ok := d.edges[edgeKey{from, to}]
	return tr, ok
}

// LookupPhase returns the phase edge from -> to inside status.
func (d *Definition) LookupPhase(status Status, from, to Phase) (PhaseTransition, bool) {
	pt, ok := d.phaseEdges[phaseKey{status, from, to}]
	return pt, ok
}

// AllowsPhase reports whether phase may be held while in status.
func (d *Definition) AllowsPhase(status Status, phase Phase) bool {
	set, ok := d.phases[status]
	if !ok {
		return true
	}
	return set[phase]
}

// IsReachable reports whether s can be reached from the initial state.
func (d *Definition) IsReachable(s State) bool {
	return d.reachable[s]
}

// ReachableStates returns every reachable state.
func (d *Definition) ReachableStates() []State {
	out := make([]State, 0, len(d.reachable))
	for _, st := range allStatuses {
		for _, p := range allPhases {
			s := State{Status: st, Phase: p}
			if d.reachable[s] {
				out = append(out, s)
			}
		}
	}
	return out
}

// Transitions returns the status edges leaving from.
func (d *Definition) Transitions(from Status) []Transition {
	var out []Transition
	for _, tr := range d.transitions {
		if tr.From == from {
			out = append(out, tr)
		}
	}
	return out
}

func knownStatus(s Status) bool {
	for _, known := range allStatuses {
		if known == s {
			return true
		}
	}
	return false
}

func knownPhase(p Phase) bool {
	for _, known := range allPhases {
		if known == p {
			return true
		}
	}
	return false
}
