// Package authz combines role-based permissions with priority-ordered,
// condition-evaluated policies into a single access decision. Any internal
// evaluation error resolves to deny; nothing panics past this boundary.
package authz

import "akademi.org/internal/identity"

// Effect is a policy verdict.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Operator selects how a condition compares the resolved attribute against
// its expected value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
)

// Condition compares one dot-separated attribute path of the evaluation
// context against a value. An unresolvable path yields the absent sentinel,
// which satisfies only the negated operators.
type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// PolicyRule is an attribute-conditioned access rule. Rules with higher
// Priority are evaluated first; the first rule whose conditions all hold
// decides the policy verdict.
type PolicyRule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Resource   string      `json:"resource"`
	Action     string      `json:"action"`
	Effect     Effect      `json:"effect"`
	Conditions []Condition `json:"conditions,omitempty"`
	Priority   int         `json:"priority"`
}

// AuthContext bundles an identity with its effective permissions for one
// organization, for downstream consumers that make repeated checks.
type AuthContext struct {
	Identity       identity.Identity     `json:"identity"`
	OrganizationID string                `json:"organization_id,omitempty"`
	Permissions    []identity.Permission `json:"permissions"`
}
