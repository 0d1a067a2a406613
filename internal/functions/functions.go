// Package functions exposes the calendar sync and reminder jobs as HTTP
// function endpoints.
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jw6ventures/lifeos/internal/auth"
	"github.com/jw6ventures/lifeos/internal/calsync"
	"github.com/jw6ventures/lifeos/internal/http/respond"
	"github.com/jw6ventures/lifeos/internal/reminders"
)

const (
	ActionGetAuthURL   = "get_auth_url"
	ActionExchangeCode = "exchange_code"
	ActionSync         = "sync"
)

// maxBodyBytes bounds function request bodies.
const maxBodyBytes = 64 << 10

// CalendarSync is the subset of calsync.Service used by the handlers.
type CalendarSync interface {
	AuthURL(ctx context.Context, p calsync.Provider, userID uuid.UUID, redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, p calsync.Provider, userID uuid.UUID, code, redirectURI string) error
	Sync(ctx context.Context, p calsync.Provider, userID uuid.UUID) (*calsync.Result, error)
}

// ReminderRunner runs a reminder job by name.
type ReminderRunner interface {
	Run(ctx context.Context, job string) (*reminders.Report, error)
}

// Handler serves the function endpoints.
type Handler struct {
	sync            CalendarSync
	google          calsync.Provider
	microsoft       calsync.Provider
	reminders       ReminderRunner
	defaultRedirect string
}

// NewHandler wires the handlers. defaultRedirect is used when a request
// carries no redirectUri.
func NewHandler(sync CalendarSync, google, microsoft calsync.Provider, runner ReminderRunner, defaultRedirect string) *Handler {
	return &Handler{
		sync:            sync,
		google:          google,
		microsoft:       microsoft,
		reminders:       runner,
		defaultRedirect: defaultRedirect,
	}
}

// SyncRequest is the body of the calendar sync functions.
type SyncRequest struct {
	Action      string `json:"action"`
	Code        string `json:"code,omitempty"`
	RedirectURI string `json:"redirectUri,omitempty"`
}

type authURLResponse struct {
	AuthURL string `json:"authUrl"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) GoogleCalendarSync(w http.ResponseWriter, r *http.Request) {
	h.calendarSync(w, r, h.google)
}

func (h *Handler) MicrosoftCalendarSync(w http.ResponseWriter, r *http.Request) {
	h.calendarSync(w, r, h.microsoft)
}

func (h *Handler) calendarSync(w http.ResponseWriter, r *http.Request, p calsync.Provider) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respond.Error(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req SyncRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		respond.BadRequest(w, r, err, "Invalid request body")
		return
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = h.defaultRedirect
	}

	ctx := r.Context()
	switch req.Action {
	case ActionGetAuthURL:
		url, err := h.sync.AuthURL(ctx, p, principal.UserID, redirectURI)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond.JSON(w, r, http.StatusOK, authURLResponse{AuthURL: url})

	case ActionExchangeCode:
		if err := h.sync.ExchangeCode(ctx, p, principal.UserID, req.Code, redirectURI); err != nil {
			writeError(w, r, err)
			return
		}
		respond.JSON(w, r, http.StatusOK, successResponse{Success: true})

	case ActionSync:
		res, err := h.sync.Sync(ctx, p, principal.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond.JSON(w, r, http.StatusOK, successResponse{Success: true, Message: res.Message()})

	default:
		respond.Error(w, r, http.StatusBadRequest, "Invalid action")
	}
}

func (h *Handler) SendHabitReminders(w http.ResponseWriter, r *http.Request) {
	h.runReminders(w, r, reminders.JobHabits)
}

func (h *Handler) SendTaskReminders(w http.ResponseWriter, r *http.Request) {
	h.runReminders(w, r, reminders.JobTasks)
}

func (h *Handler) SendFamilyReminders(w http.ResponseWriter, r *http.Request) {
	h.runReminders(w, r, reminders.JobFamily)
}

func (h *Handler) runReminders(w http.ResponseWriter, r *http.Request, job string) {
	report, err := h.reminders.Run(r.Context(), job)
	if err != nil {
		respond.InternalError(w, r, err, "reminder job "+job+" failed")
		return
	}
	respond.JSON(w, r, http.StatusOK, report)
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *calsync.ConfigError
	var provErr *calsync.ProviderError
	switch {
	case errors.As(err, &cfgErr):
		respond.BadRequest(w, r, err, cfgErr.Error())
	case errors.As(err, &provErr):
		respond.BadRequest(w, r, err, provErr.Message)
	case errors.Is(err, calsync.ErrNotConnected), errors.Is(err, calsync.ErrMissingCode):
		respond.BadRequest(w, r, err, err.Error())
	case errors.Is(err, calsync.ErrSyncInProgress):
		respond.Error(w, r, http.StatusConflict, err.Error())
	default:
		respond.InternalError(w, r, err, "calendar function failed")
	}
}
