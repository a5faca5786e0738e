package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dukerupert/memberqr/internal/auth"
	"github.com/dukerupert/memberqr/internal/imageproxy"
	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/qr"
	"github.com/dukerupert/memberqr/internal/session"
	"github.com/dukerupert/memberqr/internal/store"
)

// MemberHandler serves the QR login pages and the member's own profile.
type MemberHandler struct {
	base
	flow    *auth.Flow
	members *store.MemberStore
	codes   *qr.Generator
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(
	views *Renderer,
	sessions *session.Manager,
	flow *auth.Flow,
	members *store.MemberStore,
	codes *qr.Generator,
	logger *slog.Logger,
) *MemberHandler {
	return &MemberHandler{
		base:    base{views: views, sessions: sessions, logger: logger.With("component", "member")},
		flow:    flow,
		members: members,
		codes:   codes,
	}
}

func (h *MemberHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin/login", http.StatusFound)
}

// Login handles GET and POST /login/{member_id}.
func (h *MemberHandler) Login(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("member_id")
	sess := h.sessions.For(w, r)

	if r.Method == http.MethodPost {
		out, err := h.flow.SubmitPassword(r.Context(), sess, memberID, r.FormValue("password"))
		h.loginOutcome(w, r, out, err, r.URL.Path)
		return
	}
	out, err := h.flow.Enter(r.Context(), sess, memberID)
	h.loginOutcome(w, r, out, err, r.URL.Path)
}

// SecureLogin handles GET and POST /secure-login/{token}. The form posts back
// to the same URL, so the member id never appears in it.
func (h *MemberHandler) SecureLogin(w http.ResponseWriter, r *http.Request) {
	tok := r.PathValue("token")
	sess := h.sessions.For(w, r)

	if r.Method == http.MethodPost {
		out, err := h.flow.SubmitSecurePassword(r.Context(), sess, tok, r.FormValue("password"))
		h.loginOutcome(w, r, out, err, r.URL.Path)
		return
	}
	out, err := h.flow.EnterSecure(r.Context(), sess, tok)
	h.loginOutcome(w, r, out, err, r.URL.Path)
}

func (h *MemberHandler) loginOutcome(w http.ResponseWriter, r *http.Request, out auth.Outcome, err error, action string) {
	if err != nil {
		h.serverError(w, r, "member login", err)
		return
	}

	switch out.State {
	case auth.Rejected:
		if errors.Is(out.Err, auth.ErrInvalidToken) {
			h.renderError(w, r, http.StatusForbidden, "Invalid or expired QR code!")
			return
		}
		h.renderError(w, r, http.StatusNotFound, "Member not found! Please check your QR code.")
	case auth.Authenticated:
		http.Redirect(w, r, "/profile/"+out.MemberID, http.StatusSeeOther)
	default:
		status := http.StatusOK
		var msg string
		switch {
		case errors.Is(out.Err, auth.ErrPasswordRequired):
			status, msg = http.StatusBadRequest, "Password is required!"
		case errors.Is(out.Err, auth.ErrPasswordMismatch):
			status, msg = http.StatusUnauthorized, "Invalid password! Please try again."
		}
		h.render(w, r, status, "login.html", map[string]any{
			"Title":  "Member Login",
			"Member": out.Member,
			"Action": action,
			"Error":  msg,
		})
	}
}

// Profile shows a member their own details. Any other visitor is sent to
// that member's login page.
func (h *MemberHandler) Profile(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("member_id")
	if !h.sessions.IsMemberLoggedIn(r, memberID) {
		http.Redirect(w, r, "/login/"+memberID, http.StatusSeeOther)
		return
	}

	m, err := h.members.GetByID(r.Context(), memberID)
	if err != nil {
		h.serverError(w, r, "load profile", err)
		return
	}
	if m == nil {
		h.renderError(w, r, http.StatusNotFound, "Member not found!")
		return
	}
	h.render(w, r, http.StatusOK, "profile.html", profileData(m, h.codes, h.logger, false))
}

// profileData is shared by the member and admin views of a profile.
func profileData(m *model.Member, codes *qr.Generator, logger *slog.Logger, adminView bool) map[string]any {
	data := map[string]any{
		"Title":       m.Name,
		"Member":      m,
		"IsAdminView": adminView,
	}
	if m.ImageData != "" {
		data["ImageData"] = template.URL(m.ImageData)
	} else if m.ImagePath != "" {
		data["ImageURL"] = imageproxy.DriveThumbnailURL(m.ImagePath)
	}

	code, err := codes.Mint(m.ID)
	if err != nil {
		logger.Warn("profile qr code", "member_id", m.ID, "error", err)
		return data
	}
	data["QRCode"] = template.URL(code.DataURL())
	data["LoginURL"] = code.URL
	return data
}

// Logout ends both scopes and returns the member to their login page.
func (h *MemberHandler) Logout(w http.ResponseWriter, r *http.Request) {
	memberID, _ := h.sessions.MemberID(r)
	if err := h.flow.Logout(h.sessions.For(w, r)); err != nil {
		h.serverError(w, r, "logout", err)
		return
	}
	if memberID == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login/"+memberID, http.StatusSeeOther)
}

// ChangeOwnPassword handles POST /change-own-password.
func (h *MemberHandler) ChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	memberID := auth.MemberID(r.Context())
	profile := "/profile/" + memberID

	err := h.flow.ChangePassword(r.Context(), h.sessions.For(w, r),
		r.FormValue("current_password"),
		r.FormValue("new_password"),
		r.FormValue("confirm_password"),
	)
	switch {
	case err == nil:
		h.flash(w, r, session.FlashSuccess, "Password changed successfully!")
		h.flash(w, r, session.FlashInfo, "Please login with your new password")
		http.Redirect(w, r, "/login/"+memberID, http.StatusSeeOther)
		return
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.flash(w, r, session.FlashError, "Please login first!")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	case errors.Is(err, auth.ErrFieldsRequired):
		h.flash(w, r, session.FlashError, "All fields are required!")
	case errors.Is(err, auth.ErrPasswordConfirm):
		h.flash(w, r, session.FlashError, "New password and confirmation do not match!")
	case errors.Is(err, auth.ErrPasswordTooShort):
		h.flash(w, r, session.FlashError, "Password must be at least 6 characters long!")
	case errors.Is(err, auth.ErrPasswordMismatch):
		h.flash(w, r, session.FlashError, "Current password is incorrect!")
	default:
		h.logger.Error("change own password", "member_id", memberID, "error", err)
		h.flash(w, r, session.FlashError, "Error changing password")
	}
	http.Redirect(w, r, profile, http.StatusSeeOther)
}
