package api

import (
    "errors"
    "net/http"
    "strings"

    "tourplan/internal/auth"
)

var errNoCredentials = errors.New("missing bearer token")

// getPrincipal extracts tenant and role from the bearer token. In dev mode
// requests without a token fall back to X-Tenant-Id / X-Role headers
// (defaults t_demo / admin).
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
    authz := r.Header.Get("Authorization")
    if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
        return s.Auth.Verify(r.Context(), strings.TrimSpace(authz[7:]))
    }
    if s.Auth.Mode != "dev" {
        return auth.Principal{}, errNoCredentials
    }
    tenant := r.Header.Get("X-Tenant-Id")
    if tenant == "" { tenant = "t_demo" }
    role := strings.ToLower(r.Header.Get("X-Role"))
    if role == "" { role = "admin" }
    return auth.Principal{Tenant: tenant, Role: role}, nil
}

// principal writes a 401 and returns false when the caller is unauthenticated.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
    p, err := s.getPrincipal(r)
    if err != nil {
        w.Header().Set("WWW-Authenticate", `Bearer realm="tourplan"`)
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
        return auth.Principal{}, false
    }
    return p, true
}

// admin is principal plus an admin role check.
func (s *Server) admin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
    p, ok := s.principal(w, r)
    if !ok { return p, false }
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
        return p, false
    }
    return p, true
}
