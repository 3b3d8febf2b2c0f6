package rbac

import (
	"context"
	"net/http"

	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Store is the persistence used by Handler.
type Store interface {
	ListRoles(ctx context.Context, orgID string) ([]*Role, error)
	GetRole(ctx context.Context, orgID, id string) (*Role, error)
	CreateRole(ctx context.Context, orgID string, req *RoleRequest) (*Role, error)
	UpdateRole(ctx context.Context, orgID, id string, req *RoleRequest) (*Role, error)
	DeleteRole(ctx context.Context, orgID, id string) error
	UserRoles(ctx context.Context, orgID, userID string) ([]*Role, error)
	SetUserRoles(ctx context.Context, orgID, userID string, roleIDs []string) error
}

// Handler serves role and permission endpoints.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// ListPermissions handles GET /api/v1/permissions.
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms := Catalog()
	httpx.WriteJSON(w, http.StatusOK, httpx.ListResponse[Permission]{
		Data: perms,
		Meta: httpx.ListMeta{Total: int64(len(perms)), Page: 1, Limit: len(perms)},
	})
}

// ListRoles handles GET /api/v1/roles.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	roles, err := h.store.ListRoles(r.Context(), orgID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.ListResponse[*Role]{
		Data: roles,
		Meta: httpx.ListMeta{Total: int64(len(roles)), Page: 1, Limit: len(roles)},
	})
}

// GetRole handles GET /api/v1/roles/{id}.
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	role, err := h.store.GetRole(r.Context(), orgID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, role)
}

// CreateRole handles POST /api/v1/roles.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req RoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	role, err := h.store.CreateRole(r.Context(), orgID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	h.logger.Info("role created", "org_id", orgID, "role_id", role.ID, "name", role.Name)
	httpx.WriteJSON(w, http.StatusCreated, role)
}

// UpdateRole handles PATCH /api/v1/roles/{id}.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req RoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	role, err := h.store.UpdateRole(r.Context(), orgID, id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, role)
}

// DeleteRole handles DELETE /api/v1/roles/{id}.
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteRole(r.Context(), orgID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UserRoles handles GET /api/v1/users/{id}/roles.
func (h *Handler) UserRoles(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := h.scope(w, r)
	if !ok {
		return
	}
	roles, err := h.store.UserRoles(r.Context(), orgID, userID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": roles})
}

// SetUserRoles handles PUT /api/v1/users/{id}/roles.
func (h *Handler) SetUserRoles(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req AssignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.store.SetUserRoles(r.Context(), orgID, userID, req.RoleIDs); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user roles replaced", "org_id", orgID, "user_id", userID, "role_count", len(req.RoleIDs))
	h.UserRoles(w, r)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID, err := httpx.OrgID(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return "", "", false
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return "", "", false
	}
	return orgID, id, true
}
