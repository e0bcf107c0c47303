package profiles

import "strings"

// Role enumerates the closed set of directory roles.
type Role string

const (
	RoleBuilder        Role = "Builder"
	RoleFounder        Role = "Founder"
	RoleDeveloper      Role = "Developer"
	RoleDesigner       Role = "Designer"
	RoleInvestor       Role = "Investor"
	RoleMarketer       Role = "Marketer"
	RoleContentCreator Role = "ContentCreator"
	RoleMentor         Role = "Mentor"
	RoleLegal          Role = "Legal"
	RoleOther          Role = "Other"
)

// DefaultRole is substituted for any role input that does not resolve to a member of the closed set.
// Unknown input is never rejected.
const DefaultRole = RoleDeveloper

var knownRoles = map[Role]struct{}{
	RoleBuilder:        {},
	RoleFounder:        {},
	RoleDeveloper:      {},
	RoleDesigner:       {},
	RoleInvestor:       {},
	RoleMarketer:       {},
	RoleContentCreator: {},
	RoleMentor:         {},
	RoleLegal:          {},
	RoleOther:          {},
}

// roleLabels maps localized (Spanish) labels onto canonical roles. Lookups are case-sensitive.
var roleLabels = map[string]Role{
	"Desarrollador":        RoleDeveloper,
	"Diseñador":            RoleDesigner,
	"Inversionista":        RoleInvestor,
	"Creador de contenido": RoleContentCreator,
	"Creador de Contenido": RoleContentCreator,
	"Otro":                 RoleOther,
	"Fundador":             RoleFounder,
	"Constructor":          RoleBuilder,
	"Mercadólogo":          RoleMarketer,
}

// ResolveRole canonicalizes a raw role label, falling back to DefaultRole.
func ResolveRole(raw string) Role {
	if role, ok := LookupRole(raw); ok {
		return role
	}
	return DefaultRole
}

// LookupRole resolves a localized or canonical label without falling back.
func LookupRole(raw string) (Role, bool) {
	label := strings.TrimSpace(raw)
	if role, ok := roleLabels[label]; ok {
		return role, true
	}
	if candidate := Role(label); candidate.Valid() {
		return candidate, true
	}
	return "", false
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}
