package chat

// Role tags a participant as an end-user or a domain expert.
type Role string

const (
	RoleUser   Role = "user"
	RoleExpert Role = "expert"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleExpert
}

// Domain selects one of the two disjoint messaging contexts.
type Domain string

const (
	DomainUserExpert   Domain = "user_expert"
	DomainExpertExpert Domain = "expert_expert"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d == DomainUserExpert || d == DomainExpertExpert
}

// Allows reports whether a participant with role r may hold sessions in d.
// Users only ever talk to experts; experts may use either domain.
func (d Domain) Allows(r Role) bool {
	switch d {
	case DomainUserExpert:
		return r.Valid()
	case DomainExpertExpert:
		return r == RoleExpert
	default:
		return false
	}
}

// Caller is the authenticated participant, resolved once at the boundary.
type Caller struct {
	ID   string `json:"_id"`
	Role Role   `json:"role"`
}

// Valid reports whether the caller carries an id and a known role.
func (c Caller) Valid() bool {
	return c.ID != "" && c.Role.Valid()
}
