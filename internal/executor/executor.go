// Package executor supplies the operation executors invoked by the request
// state machine after a request is adopted.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/stationhq/station/internal/authz"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/internal/policy"
	"github.com/stationhq/station/internal/request"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

// Deps holds the services the executors act on.
type Deps struct {
	Identity    identity.Service
	Policy      policy.Service
	Permissions authz.Service
	Accounts    *AccountStore
	System      *SystemState
	Logger      *slog.Logger
}

// NewRegistry builds a request executor registry covering every supported
// operation type.
func NewRegistry(deps Deps) *request.Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Accounts == nil {
		deps.Accounts = NewAccountStore()
	}
	if deps.System == nil {
		deps.System = NewSystemState()
	}

	r := request.NewRegistry()

	r.Register(models.OperationAddUser, request.ExecutorFunc(deps.addUser))
	r.Register(models.OperationEditUser, request.ExecutorFunc(deps.editUser))
	r.Register(models.OperationAddUserGroup, request.ExecutorFunc(deps.addUserGroup))
	r.Register(models.OperationEditUserGroup, request.ExecutorFunc(deps.editUserGroup))
	r.Register(models.OperationRemoveUserGroup, request.ExecutorFunc(deps.removeUserGroup))
	r.Register(models.OperationEditPermission, request.ExecutorFunc(deps.editPermission))
	r.Register(models.OperationAddRequestPolicy, request.ExecutorFunc(deps.addRequestPolicy))
	r.Register(models.OperationEditRequestPolicy, request.ExecutorFunc(deps.editRequestPolicy))
	r.Register(models.OperationRemoveRequestPolicy, request.ExecutorFunc(deps.removeRequestPolicy))
	r.Register(models.OperationAddNamedRule, request.ExecutorFunc(deps.addNamedRule))
	r.Register(models.OperationEditNamedRule, request.ExecutorFunc(deps.editNamedRule))
	r.Register(models.OperationRemoveNamedRule, request.ExecutorFunc(deps.removeNamedRule))
	r.Register(models.OperationAddAccount, request.ExecutorFunc(deps.addAccount))
	r.Register(models.OperationEditAccount, request.ExecutorFunc(deps.editAccount))
	r.Register(models.OperationTransfer, request.ExecutorFunc(deps.transfer))
	r.Register(models.OperationChangeExternalCanister, request.ExecutorFunc(deps.changeExternalCanister))
	r.Register(models.OperationCallExternalCanister, request.ExecutorFunc(deps.callExternalCanister))
	r.Register(models.OperationSetDisasterRecovery, request.ExecutorFunc(deps.setDisasterRecovery))
	r.Register(models.OperationManageSystemInfo, request.ExecutorFunc(deps.manageSystemInfo))

	return r
}

// decodeInput maps the untyped operation input onto a typed structure.
func decodeInput(input map[string]any, v any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode operation input: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode operation input: %w", err)
	}
	return nil
}

// =============================================================================
// User and group executors
// =============================================================================

func (d Deps) addUser(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		Name       string            `json:"name"`
		Identities []string          `json:"identities"`
		Groups     []string          `json:"groups"`
		Status     models.UserStatus `json:"status"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}

	user, err := d.Identity.CreateUser(ctx, identity.CreateUserRequest{
		Name:       input.Name,
		Identities: input.Identities,
		Groups:     input.Groups,
		Status:     input.Status,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_id": user.ID}, nil
}

func (d Deps) editUser(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		UserID     string            `json:"user_id"`
		Name       string            `json:"name"`
		Identities []string          `json:"identities"`
		Groups     []string          `json:"groups"`
		Status     models.UserStatus `json:"status"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.UserID == "" {
		return nil, errors.NewValidationError("user_id", "user_id is required")
	}

	user, err := d.Identity.EditUser(ctx, &models.User{
		ID:         input.UserID,
		Name:       input.Name,
		Identities: input.Identities,
		Groups:     input.Groups,
		Status:     input.Status,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_id": user.ID}, nil
}

func (d Deps) addUserGroup(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		Name string `json:"name"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}

	group, err := d.Identity.CreateGroup(ctx, input.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"group_id": group.ID}, nil
}

func (d Deps) editUserGroup(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		GroupID string `json:"group_id"`
		Name    string `json:"name"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.GroupID == "" {
		return nil, errors.NewValidationError("group_id", "group_id is required")
	}

	group, err := d.Identity.EditGroup(ctx, input.GroupID, input.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"group_id": group.ID}, nil
}

func (d Deps) removeUserGroup(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		GroupID string `json:"group_id"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.GroupID == "" {
		return nil, errors.NewValidationError("group_id", "group_id is required")
	}

	if err := d.Identity.RemoveGroup(ctx, input.GroupID); err != nil {
		return nil, err
	}
	return map[string]any{"group_id": input.GroupID}, nil
}

// =============================================================================
// Governance executors
// =============================================================================

func (d Deps) editPermission(ctx context.Context, req *models.Request) (map[string]any, error) {
	var permission models.Permission
	if err := decodeInput(req.Operation.Input, &permission); err != nil {
		return nil, err
	}

	if err := d.Permissions.EditPermission(ctx, &permission); err != nil {
		return nil, err
	}
	return map[string]any{"resource": permission.Resource.Key()}, nil
}

func (d Deps) addRequestPolicy(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		Specifier models.RequestSpecifier  `json:"specifier"`
		Rule      models.RequestPolicyRule `json:"rule"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}

	created, err := d.Policy.CreatePolicy(ctx, policy.CreatePolicyRequest{
		Specifier: input.Specifier,
		Rule:      input.Rule,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"policy_id": created.ID}, nil
}

func (d Deps) editRequestPolicy(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		PolicyID  string                   `json:"policy_id"`
		Specifier models.RequestSpecifier  `json:"specifier"`
		Rule      models.RequestPolicyRule `json:"rule"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.PolicyID == "" {
		return nil, errors.NewValidationError("policy_id", "policy_id is required")
	}

	updated, err := d.Policy.EditPolicy(ctx, &models.RequestPolicy{
		ID:        input.PolicyID,
		Specifier: input.Specifier,
		Rule:      input.Rule,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"policy_id": updated.ID}, nil
}

func (d Deps) removeRequestPolicy(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		PolicyID string `json:"policy_id"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.PolicyID == "" {
		return nil, errors.NewValidationError("policy_id", "policy_id is required")
	}

	if err := d.Policy.RemovePolicy(ctx, input.PolicyID); err != nil {
		return nil, err
	}
	return map[string]any{"policy_id": input.PolicyID}, nil
}

func (d Deps) addNamedRule(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		Name        string                   `json:"name"`
		Description string                   `json:"description"`
		Rule        models.RequestPolicyRule `json:"rule"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}

	created, err := d.Policy.CreateNamedRule(ctx, policy.CreateNamedRuleRequest{
		Name:        input.Name,
		Description: input.Description,
		Rule:        input.Rule,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"named_rule_id": created.ID}, nil
}

func (d Deps) editNamedRule(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		NamedRuleID string                   `json:"named_rule_id"`
		Name        string                   `json:"name"`
		Description string                   `json:"description"`
		Rule        models.RequestPolicyRule `json:"rule"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.NamedRuleID == "" {
		return nil, errors.NewValidationError("named_rule_id", "named_rule_id is required")
	}

	updated, err := d.Policy.EditNamedRule(ctx, &models.NamedRule{
		ID:          input.NamedRuleID,
		Name:        input.Name,
		Description: input.Description,
		Rule:        input.Rule,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"named_rule_id": updated.ID}, nil
}

func (d Deps) removeNamedRule(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		NamedRuleID string `json:"named_rule_id"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.NamedRuleID == "" {
		return nil, errors.NewValidationError("named_rule_id", "named_rule_id is required")
	}

	if err := d.Policy.RemoveNamedRule(ctx, input.NamedRuleID); err != nil {
		return nil, err
	}
	return map[string]any{"named_rule_id": input.NamedRuleID}, nil
}

// =============================================================================
// Account and asset executors
// =============================================================================

// Account is a custody account managed by the station.
type Account struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Asset    string            `json:"asset"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AccountStore keeps the station's custody accounts. Asset movements go
// through an external ledger; the store tracks only account existence and
// metadata so related-account policies can bind to them.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewAccountStore creates an empty account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]*Account)}
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// List returns all accounts.
func (s *AccountStore) List() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]*Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		copied := *account
		accounts = append(accounts, &copied)
	}
	return accounts
}

func (s *AccountStore) put(account *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

func (d Deps) addAccount(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		Name     string            `json:"name"`
		Asset    string            `json:"asset"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, errors.NewValidationError("name", "account name is required")
	}

	account := &Account{
		ID:       uuid.New().String(),
		Name:     input.Name,
		Asset:    input.Asset,
		Metadata: input.Metadata,
	}
	d.Accounts.put(account)
	return map[string]any{"account_id": account.ID}, nil
}

func (d Deps) editAccount(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		AccountID string            `json:"account_id"`
		Name      string            `json:"name"`
		Metadata  map[string]string `json:"metadata"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}

	account, err := d.Accounts.Get(input.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", input.AccountID, err)
	}
	if input.Name != "" {
		account.Name = input.Name
	}
	if input.Metadata != nil {
		account.Metadata = input.Metadata
	}
	d.Accounts.put(account)
	return map[string]any{"account_id": account.ID}, nil
}

func (d Deps) transfer(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		AccountID string `json:"account_id"`
		To        string `json:"to"`
		Amount    string `json:"amount"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.To == "" {
		return nil, errors.NewValidationError("to", "destination is required")
	}
	if input.Amount == "" {
		return nil, errors.NewValidationError("amount", "amount is required")
	}
	if _, err := d.Accounts.Get(input.AccountID); err != nil {
		return nil, fmt.Errorf("account %s: %w", input.AccountID, err)
	}

	// The ledger adapter submits asynchronously; the request records the
	// submission, not settlement.
	transferID := uuid.New().String()
	d.Logger.InfoContext(ctx, "transfer submitted",
		"transfer_id", transferID,
		"account_id", input.AccountID,
	)
	return map[string]any{"transfer_id": transferID, "status": "submitted"}, nil
}

func (d Deps) changeExternalCanister(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		CanisterID string `json:"canister_id"`
		Mode       string `json:"mode"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.CanisterID == "" {
		return nil, errors.NewValidationError("canister_id", "canister_id is required")
	}

	d.Logger.InfoContext(ctx, "external canister change submitted",
		"canister_id", input.CanisterID,
		"mode", input.Mode,
	)
	return map[string]any{"canister_id": input.CanisterID, "status": "submitted"}, nil
}

func (d Deps) callExternalCanister(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		CanisterID string `json:"canister_id"`
		Method     string `json:"method"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if input.CanisterID == "" {
		return nil, errors.NewValidationError("canister_id", "canister_id is required")
	}
	if input.Method == "" {
		return nil, errors.NewValidationError("method", "method is required")
	}

	d.Logger.InfoContext(ctx, "external canister call submitted",
		"canister_id", input.CanisterID,
		"method", input.Method,
	)
	return map[string]any{"canister_id": input.CanisterID, "status": "submitted"}, nil
}

// =============================================================================
// System executors
// =============================================================================

// SystemState holds mutable station-level settings.
type SystemState struct {
	mu               sync.RWMutex
	name             string
	version          string
	disasterRecovery map[string]any
}

// NewSystemState creates an empty system state.
func NewSystemState() *SystemState {
	return &SystemState{}
}

// Info returns the station name and version.
func (s *SystemState) Info() (name, version string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name, s.version
}

// DisasterRecovery returns the current disaster recovery settings.
func (s *SystemState) DisasterRecovery() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disasterRecovery
}

func (d Deps) manageSystemInfo(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}

	d.System.mu.Lock()
	if input.Name != "" {
		d.System.name = input.Name
	}
	if input.Version != "" {
		d.System.version = input.Version
	}
	d.System.mu.Unlock()

	return map[string]any{"name": input.Name, "version": input.Version}, nil
}

func (d Deps) setDisasterRecovery(ctx context.Context, req *models.Request) (map[string]any, error) {
	var input struct {
		Committee map[string]any `json:"committee"`
	}
	if err := decodeInput(req.Operation.Input, &input); err != nil {
		return nil, err
	}
	if len(input.Committee) == 0 {
		return nil, errors.NewValidationError("committee", "committee is required")
	}

	d.System.mu.Lock()
	d.System.disasterRecovery = input.Committee
	d.System.mu.Unlock()

	return map[string]any{"status": "configured"}, nil
}
