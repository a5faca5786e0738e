package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/memberqr/internal/auth"
	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/qr"
	"github.com/dukerupert/memberqr/internal/roster"
	"github.com/dukerupert/memberqr/internal/session"
	"github.com/dukerupert/memberqr/internal/store"
	ws "github.com/dukerupert/memberqr/internal/websocket"
)

const (
	maxFlashedErrors = 5
	maxUploadSize    = 32 << 20
)

// Broadcaster pushes roster notifications to connected admins.
type Broadcaster interface {
	Broadcast(msg ws.Message)
}

// Recorder counts roster activity.
type Recorder interface {
	QRCodes(generated, skipped int)
	RosterChange(action string, n int)
}

// ImageFetcher downloads a member photo as a data URL.
type ImageFetcher interface {
	FetchAsDataURL(ctx context.Context, url string) (string, error)
}

// AdminHandler serves the admin login and every roster management page.
type AdminHandler struct {
	base
	flow            *auth.Flow
	members         *store.MemberStore
	importer        *roster.Importer
	images          ImageFetcher
	codes           *qr.Generator
	events          Broadcaster
	metrics         Recorder
	validate        *validator.Validate
	defaultPassword string
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	views *Renderer,
	sessions *session.Manager,
	flow *auth.Flow,
	members *store.MemberStore,
	importer *roster.Importer,
	images ImageFetcher,
	codes *qr.Generator,
	events Broadcaster,
	metrics Recorder,
	validate *validator.Validate,
	defaultPassword string,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		base:            base{views: views, sessions: sessions, logger: logger.With("component", "admin")},
		flow:            flow,
		members:         members,
		importer:        importer,
		images:          images,
		codes:           codes,
		events:          events,
		metrics:         metrics,
		validate:        validate,
		defaultPassword: defaultPassword,
	}
}

func (h *AdminHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.sessions.IsAdminLoggedIn(r) {
		http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "admin_login.html", map[string]any{"Title": "Admin Login"})
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	out, err := h.flow.AdminLogin(r.Context(), h.sessions.For(w, r), username, r.FormValue("password"))
	if err != nil {
		h.serverError(w, r, "admin login", err)
		return
	}
	if out.State != auth.AdminAuthenticated {
		h.render(w, r, http.StatusUnauthorized, "admin_login.html", map[string]any{
			"Title":    "Admin Login",
			"Error":    "Invalid admin credentials!",
			"Username": username,
		})
		return
	}
	h.flash(w, r, session.FlashSuccess, "Admin login successful!")
	http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.AdminLogout(h.sessions.For(w, r)); err != nil {
		h.serverError(w, r, "admin logout", err)
		return
	}
	h.flash(w, r, session.FlashSuccess, "Admin logged out successfully!")
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.members.Stats(r.Context())
	if err != nil {
		h.serverError(w, r, "load stats", err)
		return
	}
	members, err := h.members.List(r.Context(), model.MemberFilter{})
	if err != nil {
		h.serverError(w, r, "list members", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_dashboard.html", map[string]any{
		"Title":   "Dashboard",
		"Stats":   stats,
		"Members": members,
	})
}

func filterFromQuery(r *http.Request) model.MemberFilter {
	q := r.URL.Query()
	return model.MemberFilter{
		Search:         strings.TrimSpace(q.Get("search")),
		BloodGroup:     q.Get("blood_group"),
		MembershipType: q.Get("membership_type"),
	}
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	members, err := h.members.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, r, "list members", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_users.html", map[string]any{
		"Title":   "Members",
		"Members": members,
		"Filter":  filter,
	})
}

func memberInputFromForm(r *http.Request) model.MemberInput {
	return model.MemberInput{
		ID:             strings.TrimSpace(r.FormValue("member_id")),
		Name:           strings.TrimSpace(r.FormValue("name")),
		DateOfBirth:    strings.TrimSpace(r.FormValue("date_of_birth")),
		Address:        strings.TrimSpace(r.FormValue("address")),
		BloodGroup:     strings.TrimSpace(r.FormValue("blood_group")),
		Phone:          strings.TrimSpace(r.FormValue("phone")),
		ImagePath:      strings.TrimSpace(r.FormValue("image_path")),
		MembershipType: r.FormValue("membership_type"),
		JoiningDate:    strings.TrimSpace(r.FormValue("membership_joining_date")),
		Password:       r.FormValue("password"),
	}
}

func memberUpdateFromForm(r *http.Request) model.MemberUpdate {
	return model.MemberUpdate{
		Name:           strings.TrimSpace(r.FormValue("name")),
		DateOfBirth:    strings.TrimSpace(r.FormValue("date_of_birth")),
		Address:        strings.TrimSpace(r.FormValue("address")),
		BloodGroup:     strings.TrimSpace(r.FormValue("blood_group")),
		Phone:          strings.TrimSpace(r.FormValue("phone")),
		ImagePath:      strings.TrimSpace(r.FormValue("image_path")),
		MembershipType: r.FormValue("membership_type"),
		JoiningDate:    strings.TrimSpace(r.FormValue("membership_joining_date")),
		RenewalDate:    strings.TrimSpace(r.FormValue("membership_renewal_date")),
	}
}

func (h *AdminHandler) renderMemberForm(w http.ResponseWriter, r *http.Request, status int, editing bool, m model.Member) {
	title := "Add Member"
	if editing {
		title = "Edit Member"
	}
	h.render(w, r, status, "admin_member_form.html", map[string]any{
		"Title":       title,
		"Editing":     editing,
		"Member":      m,
		"BloodGroups": bloodGroups,
	})
}

var bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

func (h *AdminHandler) AddUserForm(w http.ResponseWriter, r *http.Request) {
	h.renderMemberForm(w, r, http.StatusOK, false, model.Member{MembershipType: model.MembershipAnnually})
}

func (h *AdminHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	in := memberInputFromForm(r)
	if in.Password == "" {
		in.Password = h.defaultPassword
	}
	echo := model.Member{
		ID: in.ID, Name: in.Name, DateOfBirth: in.DateOfBirth, Address: in.Address,
		BloodGroup: in.BloodGroup, Phone: in.Phone, ImagePath: in.ImagePath,
		MembershipType: in.MembershipType, JoiningDate: in.JoiningDate,
	}

	if err := h.validate.Struct(in); err != nil {
		for _, msg := range model.ValidationMessages(err) {
			h.flash(w, r, session.FlashError, msg)
		}
		h.renderMemberForm(w, r, http.StatusBadRequest, false, echo)
		return
	}

	m, err := h.members.Create(r.Context(), in)
	if errors.Is(err, store.ErrMemberExists) {
		h.flash(w, r, session.FlashError, "Member ID already exists!")
		h.renderMemberForm(w, r, http.StatusConflict, false, echo)
		return
	}
	if err != nil {
		h.serverError(w, r, "create member", err)
		return
	}

	h.logger.Info("member created", "member_id", m.ID, "admin", auth.AdminUsername(r.Context()))
	h.metrics.RosterChange("create", 1)
	h.events.Broadcast(ws.NewMessage("created", m.ID))
	h.flash(w, r, session.FlashSuccess, "Member added successfully!")
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

func (h *AdminHandler) EditUserForm(w http.ResponseWriter, r *http.Request) {
	m, err := h.members.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serverError(w, r, "load member", err)
		return
	}
	if m == nil {
		h.flash(w, r, session.FlashError, "Member not found!")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}
	h.renderMemberForm(w, r, http.StatusOK, true, *m)
}

func (h *AdminHandler) EditUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	u := memberUpdateFromForm(r)

	if err := h.validate.Struct(u); err != nil {
		for _, msg := range model.ValidationMessages(err) {
			h.flash(w, r, session.FlashError, msg)
		}
		h.renderMemberForm(w, r, http.StatusBadRequest, true, model.Member{
			ID: id, Name: u.Name, DateOfBirth: u.DateOfBirth, Address: u.Address,
			BloodGroup: u.BloodGroup, Phone: u.Phone, ImagePath: u.ImagePath,
			MembershipType: u.MembershipType, JoiningDate: u.JoiningDate, RenewalDate: u.RenewalDate,
		})
		return
	}

	err := h.members.Update(r.Context(), id, u)
	if errors.Is(err, store.ErrMemberNotFound) {
		h.flash(w, r, session.FlashError, "Member not found!")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.serverError(w, r, "update member", err)
		return
	}

	h.metrics.RosterChange("update", 1)
	h.events.Broadcast(ws.NewMessage("updated", id))
	h.flash(w, r, session.FlashSuccess, "Member updated successfully!")
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.members.Delete(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrMemberNotFound):
		h.flash(w, r, session.FlashError, "Member not found!")
	case err != nil:
		h.logger.Error("delete member", "member_id", id, "error", err)
		h.flash(w, r, session.FlashError, "Error deleting member")
	default:
		h.logger.Info("member deleted", "member_id", id, "admin", auth.AdminUsername(r.Context()))
		h.metrics.RosterChange("delete", 1)
		h.events.Broadcast(ws.NewMessage("deleted", id))
		h.flash(w, r, session.FlashSuccess, "Member deleted successfully!")
	}
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// bulkRules constrains the value accepted for each bulk-editable field.
var bulkRules = map[model.BulkField]string{
	model.BulkName:           "required,max=200",
	model.BulkDateOfBirth:    "datetime=2006-01-02",
	model.BulkAddress:        "max=500",
	model.BulkBloodGroup:     "oneof=A+ A- B+ B- AB+ AB- O+ O-",
	model.BulkPhone:          "max=32",
	model.BulkImagePath:      "url",
	model.BulkMembershipType: "oneof=annually lifetime",
	model.BulkJoiningDate:    "datetime=2006-01-02",
	model.BulkRenewalDate:    "datetime=2006-01-02",
}

type fieldOption struct {
	Value string
	Label string
}

func bulkFieldOptions() []fieldOption {
	fields := model.BulkFields()
	opts := make([]fieldOption, 0, len(fields))
	for _, f := range fields {
		label := strings.ReplaceAll(string(f), "_", " ")
		opts = append(opts, fieldOption{Value: string(f), Label: strings.ToUpper(label[:1]) + label[1:]})
	}
	return opts
}

func (h *AdminHandler) BulkEditForm(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	members, err := h.members.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, r, "list members", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_bulk_edit.html", map[string]any{
		"Title":   "Bulk Edit",
		"Members": members,
		"Filter":  filter,
		"Fields":  bulkFieldOptions(),
	})
}

func (h *AdminHandler) BulkEdit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	ids := r.PostForm["member_ids"]
	value := strings.TrimSpace(r.PostForm.Get("value"))
	fieldName := r.PostForm.Get("field")

	if len(ids) == 0 || fieldName == "" || value == "" {
		h.flash(w, r, session.FlashError, "Please select members, field, and provide a value!")
		http.Redirect(w, r, "/admin/bulk-edit", http.StatusSeeOther)
		return
	}
	field, ok := model.ParseBulkField(fieldName)
	if !ok {
		h.flash(w, r, session.FlashError, fmt.Sprintf("Field %q cannot be bulk edited", fieldName))
		http.Redirect(w, r, "/admin/bulk-edit", http.StatusSeeOther)
		return
	}
	if err := h.validate.Var(value, bulkRules[field]); err != nil {
		h.flash(w, r, session.FlashError, fmt.Sprintf("Invalid value %q for %s", value, field))
		http.Redirect(w, r, "/admin/bulk-edit", http.StatusSeeOther)
		return
	}

	res := h.members.BulkUpdate(r.Context(), ids, field, value)
	h.logger.Info("bulk edit", "field", field, "requested", len(ids), "updated", res.Updated, "errors", len(res.Errors))

	if res.Updated > 0 {
		h.metrics.RosterChange("bulk_update", res.Updated)
		h.events.Broadcast(ws.NewBatchMessage("updated", res.Updated))
		h.flash(w, r, session.FlashSuccess, fmt.Sprintf("Successfully updated %d members!", res.Updated))
	}
	h.flashErrors(w, r, res.Errors)
	http.Redirect(w, r, "/admin/bulk-edit", http.StatusSeeOther)
}

// flashErrors flashes the first few errors and a count of the rest.
func (h *AdminHandler) flashErrors(w http.ResponseWriter, r *http.Request, errs []string) {
	for i, msg := range errs {
		if i == maxFlashedErrors {
			h.flash(w, r, session.FlashError, fmt.Sprintf("... and %d more errors", len(errs)-maxFlashedErrors))
			return
		}
		h.flash(w, r, session.FlashError, msg)
	}
}

func (h *AdminHandler) ImportExcel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("excel_file")
	if err != nil || header.Filename == "" {
		h.flash(w, r, session.FlashError, "No file selected!")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		h.flash(w, r, session.FlashError, "Please upload a valid Excel file (.xlsx)!")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}

	res, err := h.importer.Import(r.Context(), file)
	if err != nil {
		h.logger.Warn("import excel", "filename", header.Filename, "error", err)
		h.flash(w, r, session.FlashError, "Error importing Excel file: "+err.Error())
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}

	if res.Inserted > 0 {
		h.metrics.RosterChange("import", res.Inserted)
		h.events.Broadcast(ws.NewBatchMessage("imported", res.Inserted))
	}
	h.flash(w, r, session.FlashSuccess,
		fmt.Sprintf("Imported %d members from Excel (%d already present)", res.Inserted, res.Skipped))
	h.flashErrors(w, r, res.Errors)
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// ViewProfile shows any member profile to the admin without the member's
// password.
func (h *AdminHandler) ViewProfile(w http.ResponseWriter, r *http.Request) {
	m, err := h.flow.AdminView(r.Context(), h.sessions.For(w, r), r.PathValue("id"))
	switch {
	case errors.Is(err, auth.ErrMemberNotFound):
		h.flash(w, r, session.FlashError, "Member not found!")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	case errors.Is(err, auth.ErrNotAuthorized):
		http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
		return
	case err != nil:
		h.serverError(w, r, "admin view profile", err)
		return
	}
	h.render(w, r, http.StatusOK, "profile.html", profileData(m, h.codes, h.logger, true))
}

// ReloadImages refetches every member photo and caches it as a data URL.
func (h *AdminHandler) ReloadImages(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.ListWithImages(r.Context())
	if err != nil {
		h.serverError(w, r, "list members with images", err)
		return
	}

	reloaded, failed := 0, 0
	for _, m := range members {
		dataURL, err := h.images.FetchAsDataURL(r.Context(), m.ImagePath)
		if err != nil {
			h.logger.Warn("fetch member image", "member_id", m.ID, "error", err)
			failed++
			continue
		}
		if err := h.members.SetImageData(r.Context(), m.ID, dataURL); err != nil {
			h.logger.Error("store member image", "member_id", m.ID, "error", err)
			failed++
			continue
		}
		reloaded++
	}

	if reloaded > 0 {
		h.events.Broadcast(ws.NewBatchMessage("images_reloaded", reloaded))
	}
	h.flash(w, r, session.FlashSuccess, fmt.Sprintf("Reloaded %d member images", reloaded))
	if failed > 0 {
		h.flash(w, r, session.FlashInfo, fmt.Sprintf("%d images could not be fetched", failed))
	}
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}
