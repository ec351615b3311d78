package clerk

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinobiwanshin/Sweetify/models"
)

// Identity is what a verified token says about its bearer.
type Identity struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
	Role      models.Role
	// RoleSource names the claim that granted ADMIN, empty for the default role
	RoleSource string
	ExpiresAt  time.Time
}

// Username is the lookup key used downstream: email when present, else the subject.
func (i Identity) Username() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// roleSource inspects one claim location. ok is false when the claim is
// absent or has an unexpected shape.
type roleSource struct {
	name    string
	extract func(claims map[string]any) (role models.Role, ok bool)
}

// roleSources are evaluated in this order on every token.
var roleSources = []roleSource{
	{name: "o", extract: orgInfoRole},
	{name: "role", extract: flatRole},
	{name: "roles", extract: rolesArray},
	{name: "org_role", extract: orgRole},
	{name: "org_roles", extract: orgRolesArray},
	{name: "public_metadata.role", extract: publicMetadataRole},
}

// Interpret extracts identity fields and derives the role.
func Interpret(t *VerifiedToken) Identity {
	claims := t.claims
	role, source := DeriveRole(claims)
	return Identity{
		Subject:    t.Subject,
		Email:      stringClaim(claims, "email"),
		FirstName:  stringClaim(claims, "first_name"),
		LastName:   stringClaim(claims, "last_name"),
		Role:       role,
		RoleSource: source,
		ExpiresAt:  t.ExpiresAt,
	}
}

// DeriveRole folds every role source over the claims. Any source reporting
// ADMIN makes the result ADMIN; a later non-admin result never lowers it.
func DeriveRole(claims map[string]any) (models.Role, string) {
	role, source := models.RoleUser, ""
	for _, src := range roleSources {
		r, ok := src.safeExtract(claims)
		if !ok {
			continue
		}
		if r == models.RoleAdmin {
			role, source = models.RoleAdmin, src.name
		} else if role != models.RoleAdmin {
			role = r
		}
	}
	return role, source
}

func (s roleSource) safeExtract(claims map[string]any) (role models.Role, ok bool) {
	defer func() {
		if recover() != nil {
			role, ok = "", false
		}
	}()
	return s.extract(claims)
}

// orgInfoRole reads the organization object: {"id":..,"rol":"admin","per":[..]}.
func orgInfoRole(claims map[string]any) (models.Role, bool) {
	org, ok := claims["o"].(map[string]any)
	if !ok {
		return "", false
	}
	if r, ok := org["rol"].(string); ok && isOrgAdmin(r) {
		return models.RoleAdmin, true
	}
	if per, ok := org["per"]; ok && per != nil && strings.Contains(fmt.Sprint(per), "admin") {
		return models.RoleAdmin, true
	}
	return models.RoleUser, true
}

func flatRole(claims map[string]any) (models.Role, bool) {
	r, ok := claims["role"].(string)
	if !ok {
		return "", false
	}
	if strings.EqualFold(r, "admin") || strings.EqualFold(r, "administrator") {
		return models.RoleAdmin, true
	}
	return models.RoleUser, true
}

func rolesArray(claims map[string]any) (models.Role, bool) {
	roles, ok := stringSlice(claims["roles"])
	if !ok {
		return "", false
	}
	for _, r := range roles {
		if strings.EqualFold(r, "admin") {
			return models.RoleAdmin, true
		}
	}
	return models.RoleUser, true
}

func orgRole(claims map[string]any) (models.Role, bool) {
	r, ok := claims["org_role"].(string)
	if !ok {
		return "", false
	}
	if isOrgAdmin(r) {
		return models.RoleAdmin, true
	}
	return models.RoleUser, true
}

// orgRolesArray reads org_roles, falling back to organization_roles.
func orgRolesArray(claims map[string]any) (models.Role, bool) {
	roles, ok := stringSlice(claims["org_roles"])
	if !ok {
		roles, ok = stringSlice(claims["organization_roles"])
	}
	if !ok {
		return "", false
	}
	for _, r := range roles {
		if isOrgAdmin(r) {
			return models.RoleAdmin, true
		}
	}
	return models.RoleUser, true
}

func publicMetadataRole(claims map[string]any) (models.Role, bool) {
	meta, ok := claims["public_metadata"].(map[string]any)
	if !ok {
		return "", false
	}
	raw, ok := meta["role"]
	if !ok || raw == nil {
		return "", false
	}
	r := fmt.Sprint(raw)
	if strings.EqualFold(r, "admin") || strings.EqualFold(r, "administrator") {
		return models.RoleAdmin, true
	}
	return models.RoleUser, true
}

// isOrgAdmin matches admin, owner and the namespaced org:admin marker.
func isOrgAdmin(r string) bool {
	switch strings.ToLower(r) {
	case "admin", "org:admin", "owner":
		return true
	}
	return false
}

// stringSlice accepts a JSON array; non-string entries are skipped.
func stringSlice(v any) ([]string, bool) {
	switch vals := v.(type) {
	case []string:
		return vals, true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}
