package request

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stationhq/station/internal/authz"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/internal/policy"
	"github.com/stationhq/station/pkg/errors"
	"github.com/stationhq/station/pkg/models"
)

const (
	// DefaultExpirationHorizon is applied when a request carries no explicit
	// expiration.
	DefaultExpirationHorizon = 7 * 24 * time.Hour
	// DefaultLockExpiry is how long an execution lock may be held before a
	// trapped call is considered abandoned.
	DefaultLockExpiry = 5 * time.Minute
)

// AuditLogger records request lifecycle events. Best-effort.
type AuditLogger interface {
	Log(ctx context.Context, event *models.AuditEvent) error
}

// ServiceConfig holds the collaborators of the request service.
type ServiceConfig struct {
	Repository        Repository
	Policies          policy.Service
	Authorizer        authz.Engine
	Directory         identity.Directory
	Executors         *Registry
	Notifier          NotificationSink
	Audit             AuditLogger
	Clock             Clock
	Logger            *slog.Logger
	ExpirationHorizon time.Duration
	LockExpiry        time.Duration
}

// NewService creates a new request lifecycle service.
func NewService(cfg ServiceConfig) Service {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ExpirationHorizon <= 0 {
		cfg.ExpirationHorizon = DefaultExpirationHorizon
	}
	if cfg.LockExpiry <= 0 {
		cfg.LockExpiry = DefaultLockExpiry
	}
	return &serviceImpl{
		repo:       cfg.Repository,
		policies:   cfg.Policies,
		authorizer: cfg.Authorizer,
		directory:  cfg.Directory,
		executors:  cfg.Executors,
		notifier:   cfg.Notifier,
		audit:      cfg.Audit,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		horizon:    cfg.ExpirationHorizon,
		locks:      newExecutionLock(cfg.LockExpiry, cfg.Clock),
	}
}

type serviceImpl struct {
	repo       Repository
	policies   policy.Service
	authorizer authz.Engine
	directory  identity.Directory
	executors  *Registry
	notifier   NotificationSink
	audit      AuditLogger
	clock      Clock
	logger     *slog.Logger
	horizon    time.Duration
	locks      *executionLock
}

func (s *serviceImpl) CreateRequest(ctx context.Context, callerIdentity string, input CreateRequestInput) (*models.Request, error) {
	if err := s.authorizer.Authorize(ctx, callerIdentity, models.Resource{
		Kind:   models.ResourceRequest,
		Action: models.ActionCreate,
	}); err != nil {
		return nil, err
	}
	caller, err := s.callerUser(ctx, callerIdentity)
	if err != nil {
		return nil, err
	}

	if input.Operation.Type == "" {
		return nil, errors.NewValidationError("operation", "operation type is required")
	}
	now := s.clock.Now()
	expiration := now.Add(s.horizon)
	if input.ExpirationAt != nil {
		if !input.ExpirationAt.After(now) {
			return nil, errors.NewValidationError("expiration_at", "expiration must be in the future")
		}
		expiration = *input.ExpirationAt
	}
	title := input.Title
	if title == "" {
		title = string(input.Operation.Type)
	}

	req := &models.Request{
		ID:             uuid.New().String(),
		Operation:      input.Operation,
		Title:          title,
		Summary:        input.Summary,
		RequestedBy:    caller.ID,
		Status:         models.RequestStatusCreated,
		Approvals:      []models.RequestApproval{},
		CreatedAt:      now,
		LastModifiedAt: now,
		ExpirationAt:   expiration,
		ScheduledAt:    input.ScheduledAt,
	}

	// A request no policy governs is a configuration error surfaced to the
	// caller at creation time, never an implicit approval.
	matched, err := s.policies.PoliciesForRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("operation %s: %w", req.Operation.Type, errors.ErrNoApplicablePolicy)
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logEvent(ctx, req, models.AuditEventTypeRequestCreated, caller.ID, models.AuditEventResultSuccess, nil)
	s.notifyApprovers(ctx, req)

	if err := s.evaluateAndAdvance(ctx, req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *serviceImpl) SubmitApproval(ctx context.Context, callerIdentity, requestID string, decision models.ApprovalDecision, reason string) (*models.Request, error) {
	if err := s.authorizer.Authorize(ctx, callerIdentity, models.Resource{
		Kind:   models.ResourceRequest,
		Action: models.ActionUpdate,
		ID:     requestID,
	}); err != nil {
		return nil, err
	}
	caller, err := s.callerUser(ctx, callerIdentity)
	if err != nil {
		return nil, err
	}
	if decision != models.ApprovalDecisionApproved && decision != models.ApprovalDecisionRejected {
		return nil, errors.NewValidationError("decision", fmt.Sprintf("unknown decision %q", decision))
	}

	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req.Status != models.RequestStatusCreated {
		return nil, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, errors.ErrRequestNotPending)
	}
	if req.ApprovalBy(caller.ID) != nil {
		return nil, fmt.Errorf("request %s: %w", req.ID, errors.ErrDuplicateDecision)
	}

	eligible, err := s.policies.PossibleApprovers(ctx, req)
	if err != nil {
		return nil, err
	}
	if !contains(eligible, caller.ID) {
		return nil, fmt.Errorf("request %s: %w", req.ID, errors.ErrNotEligible)
	}

	req.Approvals = append(req.Approvals, models.RequestApproval{
		ApproverID: caller.ID,
		Decision:   decision,
		Reason:     reason,
		DecidedAt:  s.clock.Now(),
	})
	req.LastModifiedAt = s.clock.Now()
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("record approval: %w", err)
	}

	s.logEvent(ctx, req, models.AuditEventTypeRequestApproval, caller.ID, models.AuditEventResultSuccess,
		map[string]any{"decision": string(decision)})

	if err := s.evaluateAndAdvance(ctx, req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *serviceImpl) CancelRequest(ctx context.Context, callerIdentity, requestID, reason string) (*models.Request, error) {
	if err := s.authorizer.Authorize(ctx, callerIdentity, models.Resource{
		Kind:   models.ResourceRequest,
		Action: models.ActionUpdate,
		ID:     requestID,
	}); err != nil {
		return nil, err
	}
	caller, err := s.callerUser(ctx, callerIdentity)
	if err != nil {
		return nil, err
	}

	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req.RequestedBy != caller.ID {
		return nil, fmt.Errorf("only the proposer may cancel request %s: %w", req.ID, errors.ErrUnauthorized)
	}
	if req.Status != models.RequestStatusCreated {
		return nil, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, errors.ErrRequestNotPending)
	}

	if reason == "" {
		reason = "cancelled by proposer"
	}
	if err := s.transition(req, models.RequestStatusCancelled, reason); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	s.logEvent(ctx, req, models.AuditEventTypeRequestTransition, caller.ID, models.AuditEventResultSuccess,
		map[string]any{"status": string(req.Status)})
	s.notifyProposer(ctx, req)
	return req, nil
}

func (s *serviceImpl) Evaluate(ctx context.Context, requestID string) (models.RuleOutcome, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("get request: %w", err)
	}
	if req.Status != models.RequestStatusCreated {
		return outcomeForStatus(req.Status), nil
	}
	outcome, err := s.policies.EvaluateRequest(ctx, req)
	if err != nil {
		s.recordEvaluationFailure(ctx, req, err)
		return "", err
	}
	if outcome != models.RuleOutcomePending {
		if err := s.advance(ctx, req, outcome); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (s *serviceImpl) PossibleApprovers(ctx context.Context, requestID string) ([]string, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return s.policies.PossibleApprovers(ctx, req)
}

func (s *serviceImpl) GetRequest(ctx context.Context, callerIdentity, requestID string) (*models.Request, error) {
	if err := s.authorizer.Authorize(ctx, callerIdentity, models.Resource{
		Kind:   models.ResourceRequest,
		Action: models.ActionRead,
		ID:     requestID,
	}); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, requestID)
}

func (s *serviceImpl) ListRequests(ctx context.Context, callerIdentity string, limit, offset int) ([]*models.Request, error) {
	if err := s.authorizer.Authorize(ctx, callerIdentity, models.Resource{
		Kind:   models.ResourceRequest,
		Action: models.ActionList,
	}); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *serviceImpl) ExpireDueRequests(ctx context.Context) (int, error) {
	due, err := s.repo.ListExpirable(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list expirable requests: %w", err)
	}
	expired := 0
	for _, req := range due {
		if req.Status != models.RequestStatusCreated {
			continue
		}
		if err := s.transition(req, models.RequestStatusCancelled, "expired"); err != nil {
			s.logger.Error("expiration transition failed", "request_id", req.ID, "error", err)
			continue
		}
		if err := s.repo.Update(ctx, req); err != nil {
			s.logger.Error("expiration update failed", "request_id", req.ID, "error", err)
			continue
		}
		s.logEvent(ctx, req, models.AuditEventTypeRequestTransition, "expiration-job", models.AuditEventResultSuccess,
			map[string]any{"status": string(req.Status)})
		s.notifyProposer(ctx, req)
		expired++
	}
	return expired, nil
}

func (s *serviceImpl) ExecuteDueRequests(ctx context.Context) (int, error) {
	due, err := s.repo.ListScheduledDue(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list due requests: %w", err)
	}
	executed := 0
	for _, req := range due {
		if req.Status != models.RequestStatusScheduled {
			continue
		}
		if err := s.execute(ctx, req); err != nil {
			if stderrors.Is(err, errors.ErrRequestLocked) {
				continue
			}
			// The failure is already recorded on the request; the sweep
			// moves on to the next one.
			s.logger.Error("scheduled execution failed", "request_id", req.ID, "error", err)
			continue
		}
		executed++
	}
	return executed, nil
}

// evaluateAndAdvance re-runs the outcome evaluator and applies the resulting
// transition, if any.
func (s *serviceImpl) evaluateAndAdvance(ctx context.Context, req *models.Request) error {
	outcome, err := s.policies.EvaluateRequest(ctx, req)
	if err != nil {
		s.recordEvaluationFailure(ctx, req, err)
		return err
	}
	if outcome == models.RuleOutcomePending {
		return nil
	}
	return s.advance(ctx, req, outcome)
}

// advance applies an Adopted or Rejected outcome to a created request.
func (s *serviceImpl) advance(ctx context.Context, req *models.Request, outcome models.RuleOutcome) error {
	switch outcome {
	case models.RuleOutcomeRejected:
		if err := s.transition(req, models.RequestStatusRejected, "rejected by policy"); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		s.logEvent(ctx, req, models.AuditEventTypeRequestTransition, "evaluator", models.AuditEventResultSuccess,
			map[string]any{"status": string(req.Status)})
		s.notifyProposer(ctx, req)
		return nil

	case models.RuleOutcomeAdopted:
		if err := s.transition(req, models.RequestStatusApproved, ""); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		s.logEvent(ctx, req, models.AuditEventTypeRequestTransition, "evaluator", models.AuditEventResultSuccess,
			map[string]any{"status": string(req.Status)})
		s.notifyProposer(ctx, req)

		if req.ScheduledAt != nil && req.ScheduledAt.After(s.clock.Now()) {
			if err := s.transition(req, models.RequestStatusScheduled, ""); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, req); err != nil {
				return fmt.Errorf("update request: %w", err)
			}
			return nil
		}
		return s.execute(ctx, req)
	}
	return nil
}

// execute runs the operation executor under the per-request lock and records
// the terminal outcome. Executor failure is terminal; failed requests are
// never retried automatically.
func (s *serviceImpl) execute(ctx context.Context, req *models.Request) error {
	if !s.locks.Acquire(req.ID) {
		return fmt.Errorf("request %s: %w", req.ID, errors.ErrRequestLocked)
	}
	defer s.locks.Release(req.ID)

	if err := s.transition(req, models.RequestStatusProcessing, ""); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, req); err != nil {
		return fmt.Errorf("update request: %w", err)
	}

	result, execErr := s.executors.Execute(ctx, req)
	if execErr != nil {
		if err := s.transition(req, models.RequestStatusFailed, execErr.Error()); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		s.logEvent(ctx, req, models.AuditEventTypeRequestTransition, "executor", models.AuditEventResultError,
			map[string]any{"status": string(req.Status), "error": execErr.Error()})
		s.notifyProposer(ctx, req)
		return execErr
	}

	req.Operation.Result = result
	if err := s.transition(req, models.RequestStatusCompleted, ""); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, req); err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	s.logEvent(ctx, req, models.AuditEventTypeRequestTransition, "executor", models.AuditEventResultSuccess,
		map[string]any{"status": string(req.Status)})
	s.notifyProposer(ctx, req)
	return nil
}

// recordEvaluationFailure makes an evaluation error auditable on the request
// record without changing its status.
func (s *serviceImpl) recordEvaluationFailure(ctx context.Context, req *models.Request, evalErr error) {
	req.StatusReason = fmt.Sprintf("evaluation error: %v", evalErr)
	req.LastModifiedAt = s.clock.Now()
	if err := s.repo.Update(ctx, req); err != nil {
		s.logger.Error("failed to record evaluation error", "request_id", req.ID, "error", err)
	}
	s.logEvent(ctx, req, models.AuditEventTypeRequestTransition, "evaluator", models.AuditEventResultError,
		map[string]any{"error": evalErr.Error()})
}

func (s *serviceImpl) callerUser(ctx context.Context, callerIdentity string) (*models.User, error) {
	user, err := s.directory.UserByIdentity(ctx, callerIdentity)
	if err != nil || user == nil {
		return nil, fmt.Errorf("unknown caller identity: %w", errors.ErrUnauthorized)
	}
	if user.Status != models.UserStatusActive {
		return nil, fmt.Errorf("caller is inactive: %w", errors.ErrUnauthorized)
	}
	return user, nil
}

// notifyApprovers fans out a creation event to every possible approver.
// Delivery never blocks the transition.
func (s *serviceImpl) notifyApprovers(ctx context.Context, req *models.Request) {
	if s.notifier == nil {
		return
	}
	approvers, err := s.policies.PossibleApprovers(ctx, req)
	if err != nil {
		s.logger.Warn("approver notification skipped", "request_id", req.ID, "error", err)
		return
	}
	event := Event{RequestID: req.ID, Status: req.Status, Title: req.Title}
	for _, userID := range approvers {
		go s.notifier.Notify(context.WithoutCancel(ctx), userID, event)
	}
}

func (s *serviceImpl) notifyProposer(ctx context.Context, req *models.Request) {
	if s.notifier == nil {
		return
	}
	event := Event{RequestID: req.ID, Status: req.Status, Title: req.Title}
	go s.notifier.Notify(context.WithoutCancel(ctx), req.RequestedBy, event)
}

func (s *serviceImpl) logEvent(ctx context.Context, req *models.Request, eventType models.AuditEventType, actor string, result models.AuditEventResult, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["operation"] = string(req.Operation.Type)
	_ = s.audit.Log(ctx, &models.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: s.clock.Now(),
		RequestID: req.ID,
		EventType: eventType,
		Actor:     actor,
		Result:    result,
		Metadata:  metadata,
	})
}

// outcomeForStatus maps a post-decision status back to the outcome that
// produced it.
func outcomeForStatus(status models.RequestStatus) models.RuleOutcome {
	switch status {
	case models.RequestStatusRejected, models.RequestStatusCancelled:
		return models.RuleOutcomeRejected
	default:
		return models.RuleOutcomeAdopted
	}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
