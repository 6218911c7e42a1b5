package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stationhq/station/internal/audit"
	"github.com/stationhq/station/internal/authz"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/internal/policy"
	"github.com/stationhq/station/internal/request"
	apierrors "github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// =============================================================================
// Common Helpers
// =============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON reads and validates JSON request body.
func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return err
	}
	defer func() { _ = r.Body.Close() }()
	return json.Unmarshal(body, v)
}

// handleError writes appropriate error response based on error type.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apierrors.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, apierrors.ErrNotInitialized):
		writeJSONError(w, http.StatusServiceUnavailable, "NOT_INITIALIZED", err.Error())
	case errors.Is(err, apierrors.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, apierrors.ErrConflict):
		writeJSONError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, apierrors.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, apierrors.ErrEvaluationFailed):
		writeJSONError(w, http.StatusUnprocessableEntity, "EVALUATION_FAILED", err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// getPaginationParams extracts limit and offset from query params.
func getPaginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return
}

// =============================================================================
// Request Handler
// =============================================================================

// RequestHandler handles custody request API requests.
type RequestHandler struct {
	service request.Service
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(service request.Service) *RequestHandler {
	return &RequestHandler{service: service}
}

// CreateRequestBody represents a request creation body.
type CreateRequestBody struct {
	Operation    models.RequestOperation `json:"operation"`
	Title        string                  `json:"title"`
	Summary      string                  `json:"summary,omitempty"`
	ExpirationAt *time.Time              `json:"expiration_at,omitempty"`
	ScheduledAt  *time.Time              `json:"scheduled_at,omitempty"`
}

// Create handles POST /api/v1/requests.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	if body.Title == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "title is required")
		return
	}

	req, err := h.service.CreateRequest(r.Context(), CallerIdentity(r), request.CreateRequestInput{
		Operation:    body.Operation,
		Title:        body.Title,
		Summary:      body.Summary,
		ExpirationAt: body.ExpirationAt,
		ScheduledAt:  body.ScheduledAt,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

// Get handles GET /api/v1/requests/{id}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request id is required")
		return
	}

	req, err := h.service.GetRequest(r.Context(), CallerIdentity(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// List handles GET /api/v1/requests.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := getPaginationParams(r)

	requests, err := h.service.ListRequests(r.Context(), CallerIdentity(r), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

// SubmitApprovalBody represents an approval decision body.
type SubmitApprovalBody struct {
	Decision models.ApprovalDecision `json:"decision"`
	Reason   string                  `json:"reason,omitempty"`
}

// SubmitApproval handles POST /api/v1/requests/{id}/approvals.
func (h *RequestHandler) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request id is required")
		return
	}

	var body SubmitApprovalBody
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	req, err := h.service.SubmitApproval(r.Context(), CallerIdentity(r), id, body.Decision, body.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// Cancel handles POST /api/v1/requests/{id}/cancel.
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request id is required")
		return
	}

	var body struct {
		Reason string `json:"reason,omitempty"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	req, err := h.service.CancelRequest(r.Context(), CallerIdentity(r), id, body.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// Approvers handles GET /api/v1/requests/{id}/approvers.
func (h *RequestHandler) Approvers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request id is required")
		return
	}

	approvers, err := h.service.PossibleApprovers(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"approvers": approvers,
		"count":     len(approvers),
	})
}

// Evaluate handles POST /api/v1/requests/{id}/evaluate.
func (h *RequestHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request id is required")
		return
	}

	outcome, err := h.service.Evaluate(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
}

// =============================================================================
// Policy Handler
// =============================================================================

// PolicyHandler handles request policy API requests.
type PolicyHandler struct {
	service policy.Service
	authz   authz.Engine
}

// NewPolicyHandler creates a new policy handler.
func NewPolicyHandler(service policy.Service, engine authz.Engine) *PolicyHandler {
	return &PolicyHandler{service: service, authz: engine}
}

func (h *PolicyHandler) authorize(w http.ResponseWriter, r *http.Request, action models.ResourceAction, id string) bool {
	resource := models.Resource{Kind: models.ResourceRequestPolicy, Action: action, ID: id}
	if err := h.authz.Authorize(r.Context(), CallerIdentity(r), resource); err != nil {
		handleError(w, err)
		return false
	}
	return true
}

// CreatePolicyBody represents a policy creation body.
type CreatePolicyBody struct {
	Specifier models.RequestSpecifier  `json:"specifier"`
	Rule      models.RequestPolicyRule `json:"rule"`
}

// Create handles POST /api/v1/policies.
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ActionCreate, "") {
		return
	}

	var body CreatePolicyBody
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	created, err := h.service.CreatePolicy(r.Context(), policy.CreatePolicyRequest{
		Specifier: body.Specifier,
		Rule:      body.Rule,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/v1/policies/{id}.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ActionRead, id) {
		return
	}

	p, err := h.service.GetPolicy(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Update handles PUT /api/v1/policies/{id}.
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ActionUpdate, id) {
		return
	}

	var body CreatePolicyBody
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	updated, err := h.service.EditPolicy(r.Context(), &models.RequestPolicy{
		ID:        id,
		Specifier: body.Specifier,
		Rule:      body.Rule,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/policies/{id}.
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ActionDelete, id) {
		return
	}

	if err := h.service.RemovePolicy(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/policies.
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ActionList, "") {
		return
	}

	policies, err := h.service.ListPolicies(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"count":    len(policies),
	})
}

// =============================================================================
// Named Rule Handler
// =============================================================================

// NamedRuleHandler handles named rule API requests.
type NamedRuleHandler struct {
	service policy.Service
	authz   authz.Engine
}

// NewNamedRuleHandler creates a new named rule handler.
func NewNamedRuleHandler(service policy.Service, engine authz.Engine) *NamedRuleHandler {
	return &NamedRuleHandler{service: service, authz: engine}
}

func (h *NamedRuleHandler) authorize(w http.ResponseWriter, r *http.Request, action models.ResourceAction, id string) bool {
	resource := models.Resource{Kind: models.ResourceNamedRule, Action: action, ID: id}
	if err := h.authz.Authorize(r.Context(), CallerIdentity(r), resource); err != nil {
		handleError(w, err)
		return false
	}
	return true
}

// CreateNamedRuleBody represents a named rule creation body.
type CreateNamedRuleBody struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Rule        models.RequestPolicyRule `json:"rule"`
}

// Create handles POST /api/v1/named-rules.
func (h *NamedRuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ActionCreate, "") {
		return
	}

	var body CreateNamedRuleBody
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	if body.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "name is required")
		return
	}

	created, err := h.service.CreateNamedRule(r.Context(), policy.CreateNamedRuleRequest{
		Name:        body.Name,
		Description: body.Description,
		Rule:        body.Rule,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/v1/named-rules/{id}.
func (h *NamedRuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ActionRead, id) {
		return
	}

	rule, err := h.service.GetNamedRule(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// Update handles PUT /api/v1/named-rules/{id}.
func (h *NamedRuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ActionUpdate, id) {
		return
	}

	var body CreateNamedRuleBody
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	updated, err := h.service.EditNamedRule(r.Context(), &models.NamedRule{
		ID:          id,
		Name:        body.Name,
		Description: body.Description,
		Rule:        body.Rule,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/named-rules/{id}.
func (h *NamedRuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ActionDelete, id) {
		return
	}

	if err := h.service.RemoveNamedRule(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/named-rules.
func (h *NamedRuleHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ActionList, "") {
		return
	}

	rules, err := h.service.ListNamedRules(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"named_rules": rules,
		"count":       len(rules),
	})
}

// =============================================================================
// Permission Handler
// =============================================================================

// PermissionHandler handles permission API requests.
type PermissionHandler struct {
	service authz.Service
}

// NewPermissionHandler creates a new permission handler.
func NewPermissionHandler(service authz.Service) *PermissionHandler {
	return &PermissionHandler{service: service}
}

func (h *PermissionHandler) authorize(w http.ResponseWriter, r *http.Request, action models.ResourceAction) bool {
	resource := models.Resource{Kind: models.ResourcePermission, Action: action}
	if err := h.service.Authorize(r.Context(), CallerIdentity(r), resource); err != nil {
		handleError(w, err)
		return false
	}
	return true
}

// Edit handles PUT /api/v1/permissions.
func (h *PermissionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ActionUpdate) {
		return
	}

	var permission models.Permission
	if err := readJSON(r, &permission); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	if err := h.service.EditPermission(r.Context(), &permission); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, permission)
}

// Get handles GET /api/v1/permissions/lookup?resource=kind:action[:id].
func (h *PermissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ActionRead) {
		return
	}

	key := r.URL.Query().Get("resource")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "resource query parameter is required")
		return
	}

	resource, err := models.ParseResourceKey(key)
	if err != nil {
		handleError(w, err)
		return
	}

	permission, err := h.service.GetPermission(r.Context(), resource)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, permission)
}

// List handles GET /api/v1/permissions.
func (h *PermissionHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ActionList) {
		return
	}

	permissions, err := h.service.ListPermissions(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": permissions,
		"count":       len(permissions),
	})
}

// =============================================================================
// User Handler
// =============================================================================

// UserHandler handles user and group API requests.
type UserHandler struct {
	service identity.Service
	authz   authz.Engine
}

// NewUserHandler creates a new user handler.
func NewUserHandler(service identity.Service, engine authz.Engine) *UserHandler {
	return &UserHandler{service: service, authz: engine}
}

func (h *UserHandler) authorize(w http.ResponseWriter, r *http.Request, kind models.ResourceKind, action models.ResourceAction, id string) bool {
	resource := models.Resource{Kind: kind, Action: action, ID: id}
	if err := h.authz.Authorize(r.Context(), CallerIdentity(r), resource); err != nil {
		handleError(w, err)
		return false
	}
	return true
}

// CreateUserBody represents a user creation body.
type CreateUserBody struct {
	Name       string            `json:"name"`
	Identities []string          `json:"identities"`
	Groups     []string          `json:"groups,omitempty"`
	Status     models.UserStatus `json:"status,omitempty"`
}

// Create handles POST /api/v1/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ResourceUser, models.ActionCreate, "") {
		return
	}

	var body CreateUserBody
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	user, err := h.service.CreateUser(r.Context(), identity.CreateUserRequest{
		Name:       body.Name,
		Identities: body.Identities,
		Groups:     body.Groups,
		Status:     body.Status,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Get handles GET /api/v1/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ResourceUser, models.ActionRead, id) {
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Update handles PUT /api/v1/users/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ResourceUser, models.ActionUpdate, id) {
		return
	}

	var user models.User
	if err := readJSON(r, &user); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	user.ID = id

	updated, err := h.service.EditUser(r.Context(), &user)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ResourceUser, models.ActionList, "") {
		return
	}

	limit, offset := getPaginationParams(r)
	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// CreateGroup handles POST /api/v1/groups.
func (h *UserHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ResourceUserGroup, models.ActionCreate, "") {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	group, err := h.service.CreateGroup(r.Context(), body.Name)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// ListGroups handles GET /api/v1/groups.
func (h *UserHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, models.ResourceUserGroup, models.ActionList, "") {
		return
	}

	limit, offset := getPaginationParams(r)
	groups, err := h.service.ListGroups(r.Context(), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

// RemoveGroup handles DELETE /api/v1/groups/{id}.
func (h *UserHandler) RemoveGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorize(w, r, models.ResourceUserGroup, models.ActionDelete, id) {
		return
	}

	if err := h.service.RemoveGroup(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Audit Handler
// =============================================================================

// AuditHandler handles audit trail API requests.
type AuditHandler struct {
	service audit.Service
	authz   authz.Engine
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(service audit.Service, engine authz.Engine) *AuditHandler {
	return &AuditHandler{service: service, authz: engine}
}

// Query handles GET /api/v1/audit.
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	resource := models.Resource{Kind: models.ResourceSystem, Action: models.ActionRead}
	if err := h.authz.Authorize(r.Context(), CallerIdentity(r), resource); err != nil {
		handleError(w, err)
		return
	}

	limit, offset := getPaginationParams(r)
	params := audit.QueryParams{
		RequestID: r.URL.Query().Get("request_id"),
		EventType: models.AuditEventType(r.URL.Query().Get("event_type")),
		Actor:     r.URL.Query().Get("actor"),
		Limit:     limit,
		Offset:    offset,
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "since must be RFC3339")
			return
		}
		params.Since = t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "until must be RFC3339")
			return
		}
		params.Until = t
	}

	events, err := h.service.Query(r.Context(), params)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Verify handles POST /api/v1/audit/verify.
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	resource := models.Resource{Kind: models.ResourceSystem, Action: models.ActionRead}
	if err := h.authz.Authorize(r.Context(), CallerIdentity(r), resource); err != nil {
		handleError(w, err)
		return
	}

	var body struct {
		Since time.Time `json:"since"`
		Until time.Time `json:"until"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	valid, err := h.service.VerifyChain(r.Context(), body.Since, body.Until)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}
