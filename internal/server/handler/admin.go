package handler

import (
	"log/slog"
	"net/http"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
)

// AdminHandler exposes the admin/multisig surface: initialize, admin
// roster management, the multisig threshold, and the pending-action
// create/approve/execute round trip.
type AdminHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler over eng.
func NewAdminHandler(eng *engine.Engine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: eng, logger: logHandler(logger, "admin")}
}

type initializeRequest struct {
	Caller     domain.Identity `json:"caller"`
	Auth       authEnvelope    `json:"auth"`
	SuperAdmin domain.Identity `json:"super_admin"`
}

// Initialize runs initialize. In practice a fresh deployment seeds its
// SuperAdmin via mode=bootstrap (internal/app.bootstrapMode) before the
// HTTP surface is ever brought up; this route exists so the entrypoint is
// still reachable over the wire, matching engine.Engine's full method set.
// POST /api/admin/initialize
func (h *AdminHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.Initialize(r.Context(), req.Caller, req.Auth.toHost(), req.SuperAdmin); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type addAdminRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
	Role   domain.AdminRole `json:"role"`
}

// AddAdmin runs add_admin.
// POST /api/admin/admins/{identity}
func (h *AdminHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	target := domain.Identity(pathParam(r, "identity"))

	var req addAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.engine.AddAdmin(r.Context(), req.Caller, req.Auth.toHost(), target, req.Role)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writePendingOrOK(w, action)
}

type removeAdminRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// RemoveAdmin runs remove_admin.
// DELETE /api/admin/admins/{identity}
func (h *AdminHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	target := domain.Identity(pathParam(r, "identity"))

	var req removeAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.engine.RemoveAdmin(r.Context(), req.Caller, req.Auth.toHost(), target)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writePendingOrOK(w, action)
}

type updateRoleRequest struct {
	Caller domain.Identity  `json:"caller"`
	Auth   authEnvelope     `json:"auth"`
	Role   domain.AdminRole `json:"role"`
}

// UpdateRole runs update_role.
// PUT /api/admin/admins/{identity}/role
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	target := domain.Identity(pathParam(r, "identity"))

	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.engine.UpdateRole(r.Context(), req.Caller, req.Auth.toHost(), target, req.Role)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writePendingOrOK(w, action)
}

type adminTargetRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// DeactivateAdmin runs deactivate_admin.
// POST /api/admin/admins/{identity}/deactivate
func (h *AdminHandler) DeactivateAdmin(w http.ResponseWriter, r *http.Request) {
	target := domain.Identity(pathParam(r, "identity"))

	var req adminTargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.DeactivateAdmin(r.Context(), req.Caller, req.Auth.toHost(), target); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ReactivateAdmin runs reactivate_admin.
// POST /api/admin/admins/{identity}/reactivate
func (h *AdminHandler) ReactivateAdmin(w http.ResponseWriter, r *http.Request) {
	target := domain.Identity(pathParam(r, "identity"))

	var req adminTargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.ReactivateAdmin(r.Context(), req.Caller, req.Auth.toHost(), target); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type setThresholdRequest struct {
	Caller    domain.Identity `json:"caller"`
	Auth      authEnvelope    `json:"auth"`
	Threshold int             `json:"threshold"`
}

// SetAdminThreshold runs set_admin_threshold.
// PUT /api/admin/threshold
func (h *AdminHandler) SetAdminThreshold(w http.ResponseWriter, r *http.Request) {
	var req setThresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.engine.SetAdminThreshold(r.Context(), req.Caller, req.Auth.toHost(), req.Threshold)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writePendingOrOK(w, action)
}

// GetMultisigConfig runs get_multisig_config.
// GET /api/admin/multisig
func (h *AdminHandler) GetMultisigConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.GetMultisigConfig(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// RequiresMultisig runs requires_multisig.
// GET /api/admin/multisig/required
func (h *AdminHandler) RequiresMultisig(w http.ResponseWriter, r *http.Request) {
	required, err := h.engine.RequiresMultisig(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"required": required})
}

type createPendingActionRequest struct {
	Caller domain.Identity            `json:"caller"`
	Auth   authEnvelope               `json:"auth"`
	Type   domain.PendingActionType   `json:"type"`
	Target domain.Identity            `json:"target"`
	Data   map[string]any             `json:"data"`
}

// CreatePendingAdminAction runs create_pending_admin_action.
// POST /api/admin/actions
func (h *AdminHandler) CreatePendingAdminAction(w http.ResponseWriter, r *http.Request) {
	var req createPendingActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.engine.CreatePendingAdminAction(r.Context(), req.Caller, req.Auth.toHost(), req.Type, req.Target, req.Data)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"action_id": string(id)})
}

type approveActionRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// ApproveAdminAction runs approve_admin_action.
// POST /api/admin/actions/{id}/approve
func (h *AdminHandler) ApproveAdminAction(w http.ResponseWriter, r *http.Request) {
	id := domain.ActionID(pathParam(r, "id"))

	var req approveActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	met, err := h.engine.ApproveAdminAction(r.Context(), req.Caller, req.Auth.toHost(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"threshold_met": met})
}

// GetPendingAdminAction runs get_pending_admin_action.
// GET /api/admin/actions/{id}
func (h *AdminHandler) GetPendingAdminAction(w http.ResponseWriter, r *http.Request) {
	id := domain.ActionID(pathParam(r, "id"))

	action, err := h.engine.GetPendingAdminAction(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

type executeActionRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
}

// ExecuteAdminAction runs execute_admin_action.
// POST /api/admin/actions/{id}/execute
func (h *AdminHandler) ExecuteAdminAction(w http.ResponseWriter, r *http.Request) {
	id := domain.ActionID(pathParam(r, "id"))

	var req executeActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.engine.ExecuteAdminAction(r.Context(), req.Caller, req.Auth.toHost(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

type emergencyPauseRequest struct {
	Caller domain.Identity `json:"caller"`
	Auth   authEnvelope    `json:"auth"`
	Reason string          `json:"reason"`
}

// EmergencyPause runs emergency_pause.
// POST /api/admin/pause
func (h *AdminHandler) EmergencyPause(w http.ResponseWriter, r *http.Request) {
	var req emergencyPauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.EmergencyPause(r.Context(), req.Caller, req.Auth.toHost(), req.Reason); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// EmergencyResume runs emergency_resume.
// POST /api/admin/resume
func (h *AdminHandler) EmergencyResume(w http.ResponseWriter, r *http.Request) {
	var req adminTargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.EmergencyResume(r.Context(), req.Caller, req.Auth.toHost()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writePendingOrOK responds with the pending action when multisig gating
// deferred the effect, or a bare acknowledgement when it ran immediately.
func writePendingOrOK(w http.ResponseWriter, action *domain.PendingAdminAction) {
	if action != nil {
		writeJSON(w, http.StatusAccepted, action)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
