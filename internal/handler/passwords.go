package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukerupert/memberqr/internal/auth"
	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/session"
	"github.com/dukerupert/memberqr/internal/store"
)

// MinResetPasswordLength applies to passwords set by an admin.
const MinResetPasswordLength = 4

func (h *AdminHandler) ResetPasswordsPage(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context(), model.MemberFilter{})
	if err != nil {
		h.serverError(w, r, "list members", err)
		return
	}
	token, err := h.sessions.CSRFToken(w, r)
	if err != nil {
		h.serverError(w, r, "csrf token", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_reset_passwords.html", map[string]any{
		"Title":           "Reset Passwords",
		"Members":         members,
		"CSRFToken":       token,
		"DefaultPassword": h.defaultPassword,
	})
}

func (h *AdminHandler) BulkResetPasswords(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.VerifyCSRF(r, r.FormValue("csrf_token")) {
		h.flash(w, r, session.FlashError, "Security token invalid!")
		http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
		return
	}

	password := h.defaultPassword
	if _, ok := r.PostForm["default_password"]; ok {
		password = r.PostForm.Get("default_password")
	}
	if len(password) < MinResetPasswordLength {
		h.flash(w, r, session.FlashError, fmt.Sprintf("Password must be at least %d characters long!", MinResetPasswordLength))
		http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
		return
	}

	n, err := h.members.ResetAllPasswords(r.Context(), password)
	if err != nil {
		h.logger.Error("reset all passwords", "error", err)
		h.flash(w, r, session.FlashError, "Failed to reset passwords")
		http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
		return
	}
	h.logger.Info("all passwords reset", "members", n, "admin", auth.AdminUsername(r.Context()))
	h.metrics.RosterChange("password_reset", int(n))
	h.flash(w, r, session.FlashSuccess, fmt.Sprintf("All passwords reset to: %s", password))
	http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
}

func (h *AdminHandler) ResetSinglePassword(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.VerifyCSRF(r, r.FormValue("csrf_token")) {
		h.flash(w, r, session.FlashError, "Security token invalid!")
		http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
		return
	}

	memberID := strings.TrimSpace(r.FormValue("member_id"))
	password := r.FormValue("new_password")
	if memberID == "" || password == "" {
		h.flash(w, r, session.FlashError, "Member ID and new password are required!")
		http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
		return
	}
	if len(password) < MinResetPasswordLength {
		h.flash(w, r, session.FlashError, fmt.Sprintf("Password must be at least %d characters long!", MinResetPasswordLength))
		http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
		return
	}

	err := h.members.ChangePassword(r.Context(), memberID, password)
	switch {
	case errors.Is(err, store.ErrMemberNotFound):
		h.flash(w, r, session.FlashError, "Member not found!")
	case err != nil:
		h.logger.Error("reset password", "member_id", memberID, "error", err)
		h.flash(w, r, session.FlashError, "Error changing password")
	default:
		h.logger.Info("password reset", "member_id", memberID, "admin", auth.AdminUsername(r.Context()))
		h.metrics.RosterChange("password_reset", 1)
		h.flash(w, r, session.FlashSuccess, "Password reset for member "+memberID)
	}
	http.Redirect(w, r, "/admin/reset-passwords", http.StatusSeeOther)
}
