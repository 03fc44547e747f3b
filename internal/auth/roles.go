package auth

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pharmacy-auth/internal/domain"
	apperrors "github.com/spec-kit/pharmacy-auth/pkg/util/errorutil"
)

// ErrForbidden is returned when an authenticated identity lacks the required role or capability.
var ErrForbidden = errors.New("insufficient role")

// DefaultCapabilities maps each non-admin role to the capabilities it holds.
func DefaultCapabilities() map[domain.Role][]domain.Capability {
	return map[domain.Role][]domain.Capability{
		domain.RoleCustomer: {
			domain.CapOrdersPlace,
			domain.CapPrescriptionsUpload,
			domain.CapPaymentsCreate,
		},
		domain.RoleAssistant: {
			domain.CapOrdersManage,
			domain.CapPrescriptionsReview,
		},
		domain.RoleStaff: {
			domain.CapOrdersManage,
			domain.CapPrescriptionsReview,
			domain.CapPaymentsRefund,
		},
		domain.RoleSupervisor: {
			domain.CapOrdersManage,
			domain.CapPrescriptionsReview,
			domain.CapPrescriptionsSign,
			domain.CapPaymentsRefund,
			domain.CapStaffManage,
		},
	}
}

// Gate decides whether a verified identity may perform an operation.
type Gate struct {
	capabilities map[domain.Role]map[domain.Capability]struct{}
}

// NewGate builds a gate from a role to capability table.
func NewGate(table map[domain.Role][]domain.Capability) *Gate {
	caps := make(map[domain.Role]map[domain.Capability]struct{}, len(table))
	for role, list := range table {
		set := make(map[domain.Capability]struct{}, len(list))
		for _, c := range list {
			set[c] = struct{}{}
		}
		caps[role] = set
	}
	return &Gate{capabilities: caps}
}

// AuthorizeRole allows admin for any role and everyone else on an exact match with one of roles.
func (g *Gate) AuthorizeRole(claim domain.IdentityClaim, roles ...domain.Role) error {
	if claim.Role == domain.RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if claim.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

// AuthorizeCapability allows admin for any capability and everyone else by their role's set.
func (g *Gate) AuthorizeCapability(claim domain.IdentityClaim, capability domain.Capability) error {
	if claim.Role == domain.RoleAdmin {
		return nil
	}
	if _, ok := g.capabilities[claim.Role][capability]; ok {
		return nil
	}
	return ErrForbidden
}

// Capabilities lists what the role holds. Admin is reported as holding none explicitly.
func (g *Gate) Capabilities(role domain.Role) []domain.Capability {
	out := make([]domain.Capability, 0, len(g.capabilities[role]))
	for c := range g.capabilities[role] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequireRole ensures the principal holds one of the allowed roles.
func (g *Gate) RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if err := g.AuthorizeRole(*principal, allowed...); err != nil {
			return apperrors.NewForbidden(err.Error())
		}
		return c.Next()
	}
}

// RequireCapability ensures the principal's role grants the capability.
func (g *Gate) RequireCapability(capability domain.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if err := g.AuthorizeCapability(*principal, capability); err != nil {
			return apperrors.NewForbidden(err.Error())
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		return c.Next()
	}
}
