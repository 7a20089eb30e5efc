package service

import (
	"strings"

	"github.com/DukeRupert/adcraft/internal/domain"
)

// AdminPolicy decides who may run administrative operations: users with the
// ADMIN role, plus any address listed in ADMIN_EMAILS.
type AdminPolicy struct {
	emails map[string]struct{}
}

// NewAdminPolicy builds a policy from a list of admin email addresses.
func NewAdminPolicy(emails []string) *AdminPolicy {
	p := &AdminPolicy{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			p.emails[e] = struct{}{}
		}
	}
	return p
}

// IsAdmin reports whether u may act as an administrator. A nil policy only
// honours the role.
func (p *AdminPolicy) IsAdmin(u *domain.User) bool {
	if u == nil {
		return false
	}
	if u.Role == domain.RoleAdmin {
		return true
	}
	if p == nil {
		return false
	}
	_, ok := p.emails[strings.ToLower(u.Email)]
	return ok
}
