package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/frontdesk/core"
)

// Headers set by the auth gateway in front of the server. The server does
// not authenticate anyone itself.
const (
	HeaderStaffID   = "X-Staff-ID"
	HeaderStaffRole = "X-Staff-Role"

	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Staff is the authenticated person working the desk.
type Staff struct {
	ID   core.StaffID
	Role string
}

func (s Staff) IsAdmin() bool { return s.Role == RoleAdmin }

type staffKey struct{}

// StaffFrom returns the staff member attached by RequireStaff.
func StaffFrom(ctx context.Context) (Staff, bool) {
	s, ok := ctx.Value(staffKey{}).(Staff)
	return s, ok
}

// WithStaff attaches s to ctx.
func WithStaff(ctx context.Context, s Staff) context.Context {
	return context.WithValue(ctx, staffKey{}, s)
}

// RequireStaff rejects requests without a staff id header.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderStaffID))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "Sign in at the desk first", nil)
			return
		}
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderStaffRole)))
		if role == "" {
			role = RoleStaff
		}
		ctx := WithStaff(r.Context(), Staff{ID: core.StaffID(id), Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin lets only admins through. It must run after RequireStaff.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := StaffFrom(r.Context())
		if !ok || !s.IsAdmin() {
			writeError(w, http.StatusForbidden, "Only an administrator can do this", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
