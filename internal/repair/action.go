package repair

import "fmt"

// ActionKind tags a RepairAction.
type ActionKind string

const (
	RemovedDisallowedConstruct ActionKind = "removed_disallowed_construct"
	RewroteSyntax              ActionKind = "rewrote_syntax"
	InjectedPosition           ActionKind = "injected_position"
	ClosedUnbalancedDelimiters ActionKind = "closed_unbalanced_delimiters"
	EmergencyPatch             ActionKind = "emergency_patch"
	ClampedCoordinate          ActionKind = "clamped_coordinate"
	Normalized                 ActionKind = "normalized"
)

// Action records one rewrite applied to a program. Which fields are set
// depends on Kind.
type Action struct {
	Kind ActionKind `json:"kind"`
	Rule string     `json:"rule"`
	Line int        `json:"line"`

	// RemovedDisallowedConstruct
	Pattern     string `json:"pattern,omitempty"`
	Replacement string `json:"replacement,omitempty"`
	// RewroteSyntax, ClampedCoordinate
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	// InjectedPosition
	Object   string `json:"object,omitempty"`
	Position string `json:"position,omitempty"`
	// ClosedUnbalancedDelimiters
	Count int `json:"count,omitempty"`
	// EmergencyPatch
	Strategy string `json:"strategy,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case RemovedDisallowedConstruct:
		return fmt.Sprintf("line %d: %s removed %s", a.Line, a.Rule, a.Pattern)
	case InjectedPosition:
		return fmt.Sprintf("line %d: positioned %s at %s", a.Line, a.Object, a.Position)
	case ClosedUnbalancedDelimiters:
		return fmt.Sprintf("line %d: closed %d delimiter(s)", a.Line, a.Count)
	case EmergencyPatch:
		return fmt.Sprintf("line %d: emergency %s", a.Line, a.Strategy)
	default:
		return fmt.Sprintf("line %d: %s %q -> %q", a.Line, a.Rule, a.Before, a.After)
	}
}
