package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/stationhq/station/internal/audit"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// =============================================================================
// Request Repository
// =============================================================================

// RequestRepository implements request persistence. The approvals list lives
// in the request row itself and the secondary access paths are SQL indexes
// over indexed columns, so a single statement updates the primary record and
// every derived key atomically.
type RequestRepository struct {
	db *DB
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) scanRequest(row interface{ Scan(...any) error }) (*models.Request, error) {
	req := &models.Request{}
	var operation, approvals []byte
	var summary, statusReason sql.NullString
	var scheduledAt sql.NullTime
	err := row.Scan(
		&req.ID, &req.Operation.Type, &operation, &req.Title, &summary,
		&req.RequestedBy, &req.Status, &statusReason, &approvals,
		&req.CreatedAt, &req.LastModifiedAt, &req.ExpirationAt, &scheduledAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	if err := json.Unmarshal(operation, &req.Operation); err != nil {
		return nil, fmt.Errorf("failed to decode operation: %w", err)
	}
	if err := json.Unmarshal(approvals, &req.Approvals); err != nil {
		return nil, fmt.Errorf("failed to decode approvals: %w", err)
	}
	req.Summary = summary.String
	req.StatusReason = statusReason.String
	if scheduledAt.Valid {
		t := scheduledAt.Time
		req.ScheduledAt = &t
	}
	return req, nil
}

const requestColumns = `id, operation_type, operation, title, summary, requested_by,
	status, status_reason, approvals, created_at, last_modified_at, expiration_at, scheduled_at`

// Create persists a new request.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	operation, err := json.Marshal(req.Operation)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}
	approvals, err := json.Marshal(req.Approvals)
	if err != nil {
		return fmt.Errorf("failed to encode approvals: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		req.ID, req.Operation.Type, operation, req.Title, nullString(req.Summary),
		req.RequestedBy, req.Status, nullString(req.StatusReason), approvals,
		req.CreatedAt, req.LastModifiedAt, req.ExpirationAt, nullTime(req.ScheduledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// Get retrieves a request by ID.
func (r *RequestRepository) Get(ctx context.Context, id string) (*models.Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	return r.scanRequest(row)
}

// Update updates an existing request.
func (r *RequestRepository) Update(ctx context.Context, req *models.Request) error {
	operation, err := json.Marshal(req.Operation)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}
	approvals, err := json.Marshal(req.Approvals)
	if err != nil {
		return fmt.Errorf("failed to encode approvals: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE requests SET operation = $2, status = $3, status_reason = $4,
			approvals = $5, last_modified_at = $6, scheduled_at = $7
		 WHERE id = $1`,
		req.ID, operation, req.Status, nullString(req.StatusReason),
		approvals, req.LastModifiedAt, nullTime(req.ScheduledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *RequestRepository) queryRequests(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.Request
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// List returns all requests, most recent first.
func (r *RequestRepository) List(ctx context.Context, limit, offset int) ([]*models.Request, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
}

// ListByStatus returns requests in the given status.
func (r *RequestRepository) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.Request, error) {
	return r.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE status = $1 ORDER BY created_at`, status)
}

// ListByProposer returns requests proposed by the given user.
func (r *RequestRepository) ListByProposer(ctx context.Context, userID string) ([]*models.Request, error) {
	return r.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE requested_by = $1 ORDER BY created_at DESC`, userID)
}

// ListExpirable returns created requests whose expiration has passed.
func (r *RequestRepository) ListExpirable(ctx context.Context, now time.Time) ([]*models.Request, error) {
	return r.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE status = 'created' AND expiration_at <= $1`, now)
}

// ListScheduledDue returns scheduled requests whose execution is due.
func (r *RequestRepository) ListScheduledDue(ctx context.Context, now time.Time) ([]*models.Request, error) {
	return r.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE status = 'scheduled' AND scheduled_at <= $1`, now)
}

// =============================================================================
// Request Policy Repository
// =============================================================================

// PolicyRepository implements request policy persistence.
type PolicyRepository struct {
	db *DB
}

// NewPolicyRepository creates a new policy repository.
func NewPolicyRepository(db *DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Create persists a new request policy.
func (r *PolicyRepository) Create(ctx context.Context, policy *models.RequestPolicy) error {
	specifier, err := json.Marshal(policy.Specifier)
	if err != nil {
		return fmt.Errorf("failed to encode specifier: %w", err)
	}
	rule, err := json.Marshal(policy.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO request_policies (id, specifier, rule) VALUES ($1, $2, $3)`,
		policy.ID, specifier, rule)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

// Get retrieves a request policy by ID.
func (r *PolicyRepository) Get(ctx context.Context, id string) (*models.RequestPolicy, error) {
	policy := &models.RequestPolicy{}
	var specifier, rule []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, specifier, rule FROM request_policies WHERE id = $1`, id,
	).Scan(&policy.ID, &specifier, &rule)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	if err := json.Unmarshal(specifier, &policy.Specifier); err != nil {
		return nil, fmt.Errorf("failed to decode specifier: %w", err)
	}
	if err := json.Unmarshal(rule, &policy.Rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}
	return policy, nil
}

// Update updates an existing request policy.
func (r *PolicyRepository) Update(ctx context.Context, policy *models.RequestPolicy) error {
	specifier, err := json.Marshal(policy.Specifier)
	if err != nil {
		return fmt.Errorf("failed to encode specifier: %w", err)
	}
	rule, err := json.Marshal(policy.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE request_policies SET specifier = $2, rule = $3 WHERE id = $1`,
		policy.ID, specifier, rule)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// Delete removes a request policy.
func (r *PolicyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM request_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// List returns all request policies.
func (r *PolicyRepository) List(ctx context.Context) ([]*models.RequestPolicy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, specifier, rule FROM request_policies`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.RequestPolicy
	for rows.Next() {
		policy := &models.RequestPolicy{}
		var specifier, rule []byte
		if err := rows.Scan(&policy.ID, &specifier, &rule); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		if err := json.Unmarshal(specifier, &policy.Specifier); err != nil {
			return nil, fmt.Errorf("failed to decode specifier: %w", err)
		}
		if err := json.Unmarshal(rule, &policy.Rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

// =============================================================================
// Named Rule Repository
// =============================================================================

// NamedRuleRepository implements named rule persistence.
type NamedRuleRepository struct {
	db *DB
}

// NewNamedRuleRepository creates a new named rule repository.
func NewNamedRuleRepository(db *DB) *NamedRuleRepository {
	return &NamedRuleRepository{db: db}
}

// Create persists a new named rule.
func (r *NamedRuleRepository) Create(ctx context.Context, rule *models.NamedRule) error {
	body, err := json.Marshal(rule.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO named_rules (id, name, description, rule) VALUES ($1, $2, $3, $4)`,
		rule.ID, rule.Name, nullString(rule.Description), body)
	if err != nil {
		return fmt.Errorf("failed to create named rule: %w", err)
	}
	return nil
}

// Get retrieves a named rule by ID.
func (r *NamedRuleRepository) Get(ctx context.Context, id string) (*models.NamedRule, error) {
	rule := &models.NamedRule{}
	var description sql.NullString
	var body []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, rule FROM named_rules WHERE id = $1`, id,
	).Scan(&rule.ID, &rule.Name, &description, &body)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get named rule: %w", err)
	}
	rule.Description = description.String
	if err := json.Unmarshal(body, &rule.Rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}
	return rule, nil
}

// Update updates an existing named rule.
func (r *NamedRuleRepository) Update(ctx context.Context, rule *models.NamedRule) error {
	body, err := json.Marshal(rule.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE named_rules SET name = $2, description = $3, rule = $4 WHERE id = $1`,
		rule.ID, rule.Name, nullString(rule.Description), body)
	if err != nil {
		return fmt.Errorf("failed to update named rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// Delete removes a named rule.
func (r *NamedRuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM named_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete named rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// List returns all named rules.
func (r *NamedRuleRepository) List(ctx context.Context) ([]*models.NamedRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, rule FROM named_rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to list named rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.NamedRule
	for rows.Next() {
		rule := &models.NamedRule{}
		var description sql.NullString
		var body []byte
		if err := rows.Scan(&rule.ID, &rule.Name, &description, &body); err != nil {
			return nil, fmt.Errorf("failed to scan named rule: %w", err)
		}
		rule.Description = description.String
		if err := json.Unmarshal(body, &rule.Rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// =============================================================================
// Permission Repository
// =============================================================================

// PermissionRepository implements permission persistence keyed by the
// canonical resource key.
type PermissionRepository struct {
	db *DB
}

// NewPermissionRepository creates a new permission repository.
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// GetByResource retrieves the permission record for an exact resource.
func (r *PermissionRepository) GetByResource(ctx context.Context, resource models.Resource) (*models.Permission, error) {
	permission := &models.Permission{Resource: resource}
	var users, groups pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT auth_scope, users, groups FROM permissions WHERE resource_key = $1`,
		resource.Key(),
	).Scan(&permission.AuthScope, &users, &groups)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	permission.Users = users
	permission.Groups = groups
	return permission, nil
}

// Upsert creates or replaces the permission record for a resource.
func (r *PermissionRepository) Upsert(ctx context.Context, permission *models.Permission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (resource_key, auth_scope, users, groups)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (resource_key) DO UPDATE SET auth_scope = $2, users = $3, groups = $4`,
		permission.Resource.Key(), permission.AuthScope,
		pq.Array(permission.Users), pq.Array(permission.Groups))
	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	return nil
}

// Delete removes the permission record for a resource.
func (r *PermissionRepository) Delete(ctx context.Context, resource models.Resource) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM permissions WHERE resource_key = $1`, resource.Key())
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// List returns all permission records.
func (r *PermissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT resource_key, auth_scope, users, groups FROM permissions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []*models.Permission
	for rows.Next() {
		permission := &models.Permission{}
		var key string
		var users, groups pq.StringArray
		if err := rows.Scan(&key, &permission.AuthScope, &users, &groups); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		resource, err := models.ParseResourceKey(key)
		if err != nil {
			return nil, err
		}
		permission.Resource = resource
		permission.Users = users
		permission.Groups = groups
		permissions = append(permissions, permission)
	}
	return permissions, rows.Err()
}

// =============================================================================
// User Repository
// =============================================================================

// UserRepository implements user persistence.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, identities, groups, status, created_at, updated_at`

func (r *UserRepository) scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var identities, groups pq.StringArray
	err := row.Scan(&user.ID, &user.Name, &identities, &groups, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Identities = identities
	user.Groups = groups
	return user, nil
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Name, pq.Array(user.Identities), pq.Array(user.Groups),
		user.Status, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.scanUser(row)
}

// GetByIdentity retrieves the user holding the given caller identity.
func (r *UserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE $1 = ANY(identities)`, identity)
	return r.scanUser(row)
}

// Update updates an existing user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, identities = $3, groups = $4, status = $5, updated_at = $6
		 WHERE id = $1`,
		user.ID, user.Name, pq.Array(user.Identities), pq.Array(user.Groups),
		user.Status, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// List returns all users.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+` LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ListByGroup returns all users belonging to a group.
func (r *UserRepository) ListByGroup(ctx context.Context, groupID string) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE $1 = ANY(groups)`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by group: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// =============================================================================
// User Group Repository
// =============================================================================

// GroupRepository implements user group persistence.
type GroupRepository struct {
	db *DB
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create persists a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.UserGroup) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_groups (id, name) VALUES ($1, $2)`, group.ID, group.Name)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// Get retrieves a group by ID.
func (r *GroupRepository) Get(ctx context.Context, id string) (*models.UserGroup, error) {
	group := &models.UserGroup{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM user_groups WHERE id = $1`, id,
	).Scan(&group.ID, &group.Name)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// Update updates an existing group.
func (r *GroupRepository) Update(ctx context.Context, group *models.UserGroup) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_groups SET name = $2 WHERE id = $1`, group.ID, group.Name)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// Delete removes a group.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// List returns all groups.
func (r *GroupRepository) List(ctx context.Context, limit, offset int) ([]*models.UserGroup, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM user_groups ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.UserGroup
	for rows.Next() {
		group := &models.UserGroup{}
		if err := rows.Scan(&group.ID, &group.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// =============================================================================
// Audit Repository
// =============================================================================

// AuditRepository implements audit event persistence.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create persists a new audit event.
func (r *AuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, timestamp, request_id, event_type, actor, result, data_hash, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Timestamp, nullString(event.RequestID), event.EventType,
		event.Actor, event.Result, nullString(event.DataHash), metadata)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}

// Get retrieves an audit event by ID.
func (r *AuditRepository) Get(ctx context.Context, id string) (*models.AuditEvent, error) {
	event := &models.AuditEvent{}
	var requestID, dataHash sql.NullString
	var metadata []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, timestamp, request_id, event_type, actor, result, data_hash, metadata
		 FROM audit_events WHERE id = $1`, id,
	).Scan(&event.ID, &event.Timestamp, &requestID, &event.EventType,
		&event.Actor, &event.Result, &dataHash, &metadata)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	event.RequestID = requestID.String
	event.DataHash = dataHash.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return event, nil
}

// Query retrieves audit events matching criteria, most recent first.
func (r *AuditRepository) Query(ctx context.Context, query audit.QueryParams) ([]*models.AuditEvent, error) {
	sqlQuery := `SELECT id, timestamp, request_id, event_type, actor, result, data_hash, metadata
		FROM audit_events WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if query.RequestID != "" {
		sqlQuery += ` AND request_id = ` + arg(query.RequestID)
	}
	if query.EventType != "" {
		sqlQuery += ` AND event_type = ` + arg(query.EventType)
	}
	if query.Actor != "" {
		sqlQuery += ` AND actor = ` + arg(query.Actor)
	}
	if query.Result != "" {
		sqlQuery += ` AND result = ` + arg(query.Result)
	}
	if !query.Since.IsZero() {
		sqlQuery += ` AND timestamp >= ` + arg(query.Since)
	}
	if !query.Until.IsZero() {
		sqlQuery += ` AND timestamp <= ` + arg(query.Until)
	}
	sqlQuery += ` ORDER BY timestamp DESC`
	if query.Limit > 0 {
		sqlQuery += ` LIMIT ` + arg(query.Limit)
	}
	if query.Offset > 0 {
		sqlQuery += ` OFFSET ` + arg(query.Offset)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event := &models.AuditEvent{}
		var requestID, dataHash sql.NullString
		var metadata []byte
		if err := rows.Scan(&event.ID, &event.Timestamp, &requestID, &event.EventType,
			&event.Actor, &event.Result, &dataHash, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.RequestID = requestID.String
		event.DataHash = dataHash.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
