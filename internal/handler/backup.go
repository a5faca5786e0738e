package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/memberqr/internal/backup"
	"github.com/dukerupert/memberqr/internal/session"
)

const backupHistoryLimit = 20

type BackupHandler struct {
	base
	manager *backup.Manager
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(views *Renderer, sessions *session.Manager, manager *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{
		base:    base{views: views, sessions: sessions, logger: logger.With("component", "backup_handler")},
		manager: manager,
	}
}

func (h *BackupHandler) Page(w http.ResponseWriter, r *http.Request) {
	backups, err := h.manager.List(r.Context(), backupHistoryLimit)
	if err != nil {
		h.serverError(w, r, "list backups", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_backups.html", map[string]any{
		"Title":   "Backups",
		"Enabled": h.manager.Enabled(),
		"Status":  h.manager.Status(),
		"Backups": backups,
	})
}

func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, err := h.manager.RunNow(r.Context())
	switch {
	case errors.Is(err, backup.ErrDisabled):
		h.flash(w, r, session.FlashError, "Backups are not configured")
	case errors.Is(err, backup.ErrInProgress):
		h.flash(w, r, session.FlashInfo, "A backup is already running")
	case err != nil:
		h.flash(w, r, session.FlashError, "Backup failed: "+err.Error())
	default:
		h.flash(w, r, session.FlashSuccess, fmt.Sprintf("Backup #%d uploaded", id))
	}
	http.Redirect(w, r, "/admin/backups", http.StatusSeeOther)
}

// Download streams the encrypted backup object to the admin.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid backup id")
		return
	}

	body, record, err := h.manager.Download(r.Context(), id)
	switch {
	case errors.Is(err, backup.ErrNotFound):
		h.renderError(w, r, http.StatusNotFound, "Backup not found!")
		return
	case errors.Is(err, backup.ErrDisabled):
		h.renderError(w, r, http.StatusServiceUnavailable, "Backups are not configured")
		return
	case err != nil:
		h.serverError(w, r, "download backup", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream backup", "backup_id", id, "error", err)
	}
}
