package authz

// DefaultPolicies is the static seed every process starts from. The registry
// is in-memory only, so each instance must be seeded identically; additional
// rules arrive through configuration at startup.
func DefaultPolicies() []PolicyRule {
	return []PolicyRule{
		{
			ID:       "deny-suspended-content-write",
			Name:     "Suspended accounts cannot author content",
			Resource: "content",
			Action:   "write",
			Effect:   EffectDeny,
			Priority: 100,
			Conditions: []Condition{
				{Attribute: "user.status", Operator: OpEquals, Value: "suspended"},
			},
		},
		{
			ID:       "deny-grades-write-without-mfa",
			Name:     "Grade changes require an MFA-enrolled account",
			Resource: "grades",
			Action:   "write",
			Effect:   EffectDeny,
			Priority: 90,
			Conditions: []Condition{
				{Attribute: "user.mfa_enabled", Operator: OpEquals, Value: false},
			},
		},
		{
			ID:       "allow-org-admin-reports",
			Name:     "Organization admins can read tenant reports",
			Resource: "reports",
			Action:   "read",
			Effect:   EffectAllow,
			Priority: 50,
			Conditions: []Condition{
				{Attribute: "user.roles", Operator: OpContains, Value: "org_admin"},
			},
		},
	}
}
