package middleware

import (
	"net/http"

	"github.com/dukerupert/memberqr/internal/auth"
	"github.com/dukerupert/memberqr/internal/session"
)

// RequireAdmin lets requests through only while the admin scope is live and
// attaches the admin username to the request context.
func RequireAdmin(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := sessions.AdminUsername(r)
			if !ok {
				http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
				return
			}
			ac, _ := auth.FromContext(r.Context())
			ac.AdminUsername = username
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireMember lets requests through only while a member scope is live.
// Handlers that serve one specific member still compare ids themselves.
func RequireMember(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID, ok := sessions.MemberID(r)
			if !ok {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			ac, _ := auth.FromContext(r.Context())
			ac.MemberID = memberID
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}
