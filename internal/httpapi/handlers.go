package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"thermalguard/internal/actionlog"
	"thermalguard/internal/cooldown"
)

// StateReporter exposes the cooldown state of an action.
type StateReporter interface {
	State() cooldown.State
}

// TokenStatus exposes the expiry of the cached cloud access token.
type TokenStatus interface {
	ExpiresAt() time.Time
}

// CalibrationStatus reports how many calibration points are loaded.
type CalibrationStatus interface {
	Len() int
}

type Deps struct {
	DB      *sql.DB
	Actions actionlog.Repository
	// SMS and Relay may be nil when the action is not configured.
	SMS   StateReporter
	Relay StateReporter
	// Token is nil when the cloud is not configured.
	Token       TokenStatus
	Calibration CalibrationStatus
	Logger      *slog.Logger
}

type handlers struct {
	deps Deps
}

func NewMux(deps Deps) *http.ServeMux {
	h := &handlers{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /api/actions", h.handleActions)
	return mux
}

type healthResponse struct {
	Status            string     `json:"status"`
	Calibrated        bool       `json:"calibrated"`
	CalibrationPoints int        `json:"calibration_points"`
	SMS               string     `json:"sms"`
	Relay             string     `json:"relay"`
	TokenExpiresAt    *time.Time `json:"token_expires_at,omitempty"`
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PingContext(r.Context()); err != nil {
		h.deps.Logger.Error("failed to check database connectivity", "error", err)
		fail(w, r, h.deps.Logger, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	resp := healthResponse{
		Status: "ok",
		SMS:    stateOf(h.deps.SMS),
		Relay:  stateOf(h.deps.Relay),
	}
	if h.deps.Calibration != nil {
		resp.CalibrationPoints = h.deps.Calibration.Len()
		resp.Calibrated = resp.CalibrationPoints > 0
	}
	// Zero until the first token fetch succeeds.
	if h.deps.Token != nil {
		if exp := h.deps.Token.ExpiresAt(); !exp.IsZero() {
			resp.TokenExpiresAt = &exp
		}
	}
	respond(w, r, h.deps.Logger, http.StatusOK, resp)
}

func (h *handlers) handleActions(w http.ResponseWriter, r *http.Request) {
	kind := actionlog.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "", actionlog.KindSMS, actionlog.KindRelay:
	default:
		fail(w, r, h.deps.Logger, http.StatusBadRequest, "kind must be sms or relay")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			fail(w, r, h.deps.Logger, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	actions, err := h.deps.Actions.List(r.Context(), kind, limit)
	if err != nil {
		h.deps.Logger.Error("failed to list actions", "error", err)
		fail(w, r, h.deps.Logger, http.StatusInternalServerError, "failed to list actions")
		return
	}
	if actions == nil {
		actions = []actionlog.Action{}
	}
	respond(w, r, h.deps.Logger, http.StatusOK, actions)
}

func stateOf(s StateReporter) string {
	if s == nil {
		return "disabled"
	}
	return s.State().String()
}
