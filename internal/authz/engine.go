package authz

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"akademi.org/internal/identity"
)

// Wildcard matches any resource or action.
const Wildcard = "*"

// Engine is the authorization decision point. The policy registry is the one
// piece of in-memory mutable state in the core: each process seeds its own
// copy at startup, and cross-instance mutation is handled by external config
// distribution, not by the engine.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]PolicyRule
}

// NewEngine builds an engine seeded with the default platform policies plus
// any externally supplied rules.
func NewEngine(extra ...PolicyRule) *Engine {
	e := &Engine{policies: make(map[string]PolicyRule)}
	for _, p := range DefaultPolicies() {
		e.policies[p.ID] = p
	}
	for _, p := range extra {
		if p.ID != "" {
			e.policies[p.ID] = p
		}
	}
	return e
}

// AddPolicy registers or replaces a rule; idempotent by id.
func (e *Engine) AddPolicy(p PolicyRule) {
	if strings.TrimSpace(p.ID) == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.ID] = p
}

// RemovePolicy drops a rule; removing an unknown id is a no-op.
func (e *Engine) RemovePolicy(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.policies, id)
}

// Policies returns a snapshot of the registry.
func (e *Engine) Policies() []PolicyRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]PolicyRule, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasPermission decides access for identity on resource/action with the
// given request attributes. Role grants establish the baseline; a firing
// policy overrides it (deny or allow); with no policy opinion the role
// verdict stands. Evaluation errors resolve to deny.
func (e *Engine) HasPermission(id identity.Identity, resource, action, orgID string, attrs map[string]any) (decision bool) {
	defer func() {
		if recover() != nil {
			decision = false
		}
	}()

	roleVerdict := e.roleAllows(id, resource, action, orgID)

	verdict, fired := e.policyVerdict(id, resource, action, attrs)
	if fired {
		return verdict == EffectAllow
	}
	return roleVerdict
}

// roleAllows is the role-based pass: roles scoped to the requested
// organization plus global roles, any permission matching resource+action.
func (e *Engine) roleAllows(id identity.Identity, resource, action, orgID string) bool {
	for _, role := range applicableRoles(id, orgID) {
		for _, perm := range role.Permissions {
			if matchToken(perm.Resource, resource) && matchToken(perm.Action, action) {
				return true
			}
		}
	}
	return false
}

// policyVerdict runs the policy pass: rules whose resource and action equal
// the request's, highest priority first; the first rule whose conditions all
// hold fires. fired=false means no opinion.
func (e *Engine) policyVerdict(id identity.Identity, resource, action string, attrs map[string]any) (Effect, bool) {
	e.mu.RLock()
	candidates := make([]PolicyRule, 0, len(e.policies))
	for _, p := range e.policies {
		if p.Resource == resource && p.Action == action {
			candidates = append(candidates, p)
		}
	}
	e.mu.RUnlock()

	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Priority > candidates[j].Priority })

	evalCtx := mergeContext(id, attrs)
	for _, p := range candidates {
		fired := true
		for _, cond := range p.Conditions {
			if !evalCondition(cond, evalCtx) {
				fired = false
				break
			}
		}
		if fired {
			return p.Effect, true
		}
	}
	return "", false
}

// UserPermissions returns the identity's effective permissions in the
// organization, deduplicated by permission id across applicable roles.
func (e *Engine) UserPermissions(id identity.Identity, orgID string) []identity.Permission {
	seen := make(map[string]struct{})
	var out []identity.Permission
	for _, role := range applicableRoles(id, orgID) {
		for _, perm := range role.Permissions {
			if _, ok := seen[perm.ID]; ok {
				continue
			}
			seen[perm.ID] = struct{}{}
			out = append(out, perm)
		}
	}
	return out
}

// UserRoles filters the identity's roles to those applicable in the
// organization (global roles always included).
func (e *Engine) UserRoles(id identity.Identity, orgID string) []identity.Role {
	return applicableRoles(id, orgID)
}

// HasRole reports whether an applicable role carries the given name.
func (e *Engine) HasRole(id identity.Identity, orgID, name string) bool {
	for _, role := range applicableRoles(id, orgID) {
		if role.Name == name {
			return true
		}
	}
	return false
}

// NewAuthContext bundles identity, organization and deduplicated permissions
// for downstream consumers.
func (e *Engine) NewAuthContext(id identity.Identity, orgID string) AuthContext {
	return AuthContext{
		Identity:       id,
		OrganizationID: orgID,
		Permissions:    e.UserPermissions(id, orgID),
	}
}

func applicableRoles(id identity.Identity, orgID string) []identity.Role {
	var out []identity.Role
	for _, role := range id.Roles {
		if role.OrganizationID == "" || role.OrganizationID == orgID {
			out = append(out, role)
		}
	}
	return out
}

// matchToken matches a permission token against a request value. Exact match
// wins; a bare wildcard matches anything; a token embedding the wildcard is
// tested against the entire value, never partially.
func matchToken(pattern, value string) bool {
	if pattern == value {
		return true
	}
	if pattern == Wildcard {
		return true
	}
	if !strings.Contains(pattern, Wildcard) {
		return false
	}
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	matched, err := regexp.MatchString(expr, value)
	if err != nil {
		return false
	}
	return matched
}

// mergeContext layers explicit request attributes over the identity's own,
// with the identity exposed under "user".
func mergeContext(id identity.Identity, attrs map[string]any) map[string]any {
	orgs := make([]any, 0, len(id.Orgs))
	for _, o := range id.OrgIDs() {
		orgs = append(orgs, o)
	}
	roles := make([]any, 0, len(id.Roles))
	for _, r := range id.RoleNames() {
		roles = append(roles, r)
	}
	merged := map[string]any{
		"user": map[string]any{
			"id":          id.ID,
			"email":       id.Email,
			"status":      id.Status,
			"roles":       roles,
			"orgs":        orgs,
			"mfa_enabled": id.MFAEnabled,
		},
	}
	for k, v := range attrs {
		merged[k] = v
	}
	return merged
}
