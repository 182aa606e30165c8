package service

import (
	"context"
	"sync"
	"testing"

	"crm-backend/internal/approval"
	"crm-backend/internal/model"
	"crm-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockRequisitionRepo struct {
	createFn                func(ctx context.Context, req *model.Requisition) error
	findByIDFn              func(ctx context.Context, id uuid.UUID) (*model.Requisition, error)
	findByIDWithRelationsFn func(ctx context.Context, id uuid.UUID) (*model.Requisition, error)
	listFn                  func(ctx context.Context, status string, requesterID *uuid.UUID, page, limit int) ([]model.Requisition, int64, error)
	transitionStatusFn      func(ctx context.Context, id uuid.UUID, expected approval.Status, change repository.StatusChange) error
}

func (m *mockRequisitionRepo) Create(ctx context.Context, req *model.Requisition) error {
	return m.createFn(ctx, req)
}

func (m *mockRequisitionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockRequisitionRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
	return m.findByIDWithRelationsFn(ctx, id)
}

func (m *mockRequisitionRepo) List(ctx context.Context, status string, requesterID *uuid.UUID, page, limit int) ([]model.Requisition, int64, error) {
	return m.listFn(ctx, status, requesterID, page, limit)
}

func (m *mockRequisitionRepo) TransitionStatus(ctx context.Context, id uuid.UUID, expected approval.Status, change repository.StatusChange) error {
	return m.transitionStatusFn(ctx, id, expected, change)
}

type mockUserRepo struct {
	repository.UserRepository
	getByIDFn func(ctx context.Context, id uuid.UUID) (*model.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return m.getByIDFn(ctx, id)
}

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (m *mockAuditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, action string, page, limit int) ([]model.AuditLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, int64(len(m.entries)), nil
}

// passthroughTx runs the callback without a real transaction
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// --- Fixtures ---

func userWithRole(id uuid.UUID, role string) *model.User {
	return &model.User{ID: id, Username: "user-" + role, Role: role}
}

func pendingRequisition(id uuid.UUID, amount int64) *model.Requisition {
	return &model.Requisition{
		ID:          id,
		RequesterID: uuid.New(),
		Title:       "Team offsite",
		Description: "Q3 planning offsite",
		Amount:      decimal.NewFromInt(amount),
		Category:    "travel",
		Status:      approval.StatusPending,
	}
}

func newTestService(reqRepo repository.RequisitionRepository, userRepo repository.UserRepository, auditRepo repository.AuditRepository) RequisitionService {
	engine := approval.NewEngine(approval.Policy{Threshold: decimal.NewFromInt(100000)})
	return NewRequisitionService(reqRepo, userRepo, auditRepo, passthroughTx{}, engine, nil, zap.NewNop())
}

// --- Tests ---

func TestSubmit_Validation(t *testing.T) {
	requesterID := uuid.New().String()
	valid := SubmitRequisitionRequest{
		Title:       "New laptops",
		Description: "Replacements for the dev team",
		Amount:      "4200.50",
		Category:    "equipment",
	}

	tests := []struct {
		name   string
		mutate func(r *SubmitRequisitionRequest)
	}{
		{"non-numeric amount", func(r *SubmitRequisitionRequest) { r.Amount = "a lot" }},
		{"zero amount", func(r *SubmitRequisitionRequest) { r.Amount = "0" }},
		{"negative amount", func(r *SubmitRequisitionRequest) { r.Amount = "-10" }},
		{"blank title", func(r *SubmitRequisitionRequest) { r.Title = "   " }},
		{"blank category", func(r *SubmitRequisitionRequest) { r.Category = "" }},
		{"malformed project id", func(r *SubmitRequisitionRequest) { r.ProjectID = "not-a-uuid" }},
	}

	svc := newTestService(&mockRequisitionRepo{}, &mockUserRepo{}, &mockAuditRepo{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.Submit(context.Background(), requesterID, req)
			var vErr *approval.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestSubmit_CreatesPendingWithAudit(t *testing.T) {
	requisitionID := uuid.New()
	requesterID := uuid.New()

	var created *model.Requisition
	reqRepo := &mockRequisitionRepo{
		createFn: func(ctx context.Context, req *model.Requisition) error {
			req.ID = requisitionID
			created = req
			return nil
		},
		findByIDWithRelationsFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
			return created, nil
		},
	}
	auditRepo := &mockAuditRepo{}
	svc := newTestService(reqRepo, &mockUserRepo{}, auditRepo)

	resp, err := svc.Submit(context.Background(), requesterID.String(), SubmitRequisitionRequest{
		Title:       "Conference tickets",
		Description: "Two tickets to GopherCon",
		Amount:      "1500",
		Category:    "training",
	})
	require.NoError(t, err)

	assert.Equal(t, approval.StatusPending, created.Status)
	assert.Equal(t, requesterID, created.RequesterID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "1500.0000", resp.Amount)

	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, model.ActionSubmitRequisition, auditRepo.entries[0].Action)
	assert.Equal(t, requisitionID.String(), auditRepo.entries[0].EntityID)
}

func TestApprove_StampsByRoleAndAmount(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		amount     int64
		fromStatus approval.Status
		wantNext   approval.Status
		wantStamp  string
	}{
		{"finance below threshold", "finance", 500, approval.StatusPending, approval.StatusApproved, "finance"},
		{"admin above threshold", "admin", 200000, approval.StatusPending, approval.StatusFinanceApproved, "finance"},
		{"super admin bypass", "super_admin", 200000, approval.StatusPending, approval.StatusApproved, "super_admin"},
		{"super admin second stage", "super_admin", 200000, approval.StatusFinanceApproved, approval.StatusApproved, "super_admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requisitionID := uuid.New()
			actorID := uuid.New()
			stored := pendingRequisition(requisitionID, tt.amount)
			stored.Status = tt.fromStatus

			var captured repository.StatusChange
			var capturedExpected approval.Status
			reqRepo := &mockRequisitionRepo{
				findByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
					return stored, nil
				},
				transitionStatusFn: func(ctx context.Context, id uuid.UUID, expected approval.Status, change repository.StatusChange) error {
					capturedExpected = expected
					captured = change
					return nil
				},
				findByIDWithRelationsFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
					reloaded := *stored
					reloaded.Status = captured.Next
					return &reloaded, nil
				},
			}
			userRepo := &mockUserRepo{getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				return userWithRole(id, tt.role), nil
			}}
			auditRepo := &mockAuditRepo{}
			svc := newTestService(reqRepo, userRepo, auditRepo)

			resp, err := svc.Approve(context.Background(), requisitionID.String(), actorID.String())
			require.NoError(t, err)

			assert.Equal(t, tt.fromStatus, capturedExpected)
			assert.Equal(t, tt.wantNext, captured.Next)
			assert.Equal(t, tt.wantNext.String(), resp.Status)

			switch tt.wantStamp {
			case "finance":
				require.NotNil(t, captured.FinanceApprovedBy)
				assert.Equal(t, actorID, *captured.FinanceApprovedBy)
				assert.NotNil(t, captured.FinanceApprovedAt)
				assert.Nil(t, captured.SuperAdminApprovedBy)
				assert.Nil(t, captured.RejectedBy)
			case "super_admin":
				require.NotNil(t, captured.SuperAdminApprovedBy)
				assert.Equal(t, actorID, *captured.SuperAdminApprovedBy)
				assert.NotNil(t, captured.SuperAdminApprovedAt)
				assert.Nil(t, captured.FinanceApprovedBy)
				assert.Nil(t, captured.RejectedBy)
			}

			require.Len(t, auditRepo.entries, 1)
			assert.Equal(t, model.ActionApproveRequisition, auditRepo.entries[0].Action)
		})
	}
}

func TestApprove_RequesterForbidden(t *testing.T) {
	requisitionID := uuid.New()
	reqRepo := &mockRequisitionRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
			return pendingRequisition(id, 500), nil
		},
	}
	userRepo := &mockUserRepo{getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
		return userWithRole(id, "requester"), nil
	}}
	svc := newTestService(reqRepo, userRepo, &mockAuditRepo{})

	_, err := svc.Approve(context.Background(), requisitionID.String(), uuid.New().String())
	assert.ErrorIs(t, err, approval.ErrUnauthorized)
}

func TestApprove_ConflictRetriesOnce(t *testing.T) {
	requisitionID := uuid.New()
	reads := 0

	// First read sees PENDING, the conditional write loses the race, and the
	// retry's read sees the requisition already finalized.
	reqRepo := &mockRequisitionRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
			reads++
			r := pendingRequisition(id, 500)
			if reads > 1 {
				r.Status = approval.StatusApproved
			}
			return r, nil
		},
		transitionStatusFn: func(ctx context.Context, id uuid.UUID, expected approval.Status, change repository.StatusChange) error {
			return approval.ErrConflict
		},
	}
	userRepo := &mockUserRepo{getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
		return userWithRole(id, "finance"), nil
	}}
	svc := newTestService(reqRepo, userRepo, &mockAuditRepo{})

	_, err := svc.Approve(context.Background(), requisitionID.String(), uuid.New().String())
	assert.ErrorIs(t, err, approval.ErrInvalidState)
	assert.Equal(t, 2, reads)
}

func TestReject(t *testing.T) {
	t.Run("finance rejects with reason", func(t *testing.T) {
		requisitionID := uuid.New()
		actorID := uuid.New()
		stored := pendingRequisition(requisitionID, 500)

		var captured repository.StatusChange
		reqRepo := &mockRequisitionRepo{
			findByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
				return stored, nil
			},
			transitionStatusFn: func(ctx context.Context, id uuid.UUID, expected approval.Status, change repository.StatusChange) error {
				captured = change
				return nil
			},
			findByIDWithRelationsFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
				reloaded := *stored
				reloaded.Status = approval.StatusRejected
				reloaded.RejectionReason = captured.RejectionReason
				return &reloaded, nil
			},
		}
		userRepo := &mockUserRepo{getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
			return userWithRole(id, "finance"), nil
		}}
		svc := newTestService(reqRepo, userRepo, &mockAuditRepo{})

		resp, err := svc.Reject(context.Background(), requisitionID.String(), actorID.String(), "  duplicate request  ")
		require.NoError(t, err)

		assert.Equal(t, approval.StatusRejected, captured.Next)
		require.NotNil(t, captured.RejectedBy)
		assert.Equal(t, actorID, *captured.RejectedBy)
		assert.Equal(t, "duplicate request", captured.RejectionReason)
		assert.Equal(t, "REJECTED", resp.Status)
	})

	t.Run("blank reason refused before persistence", func(t *testing.T) {
		requisitionID := uuid.New()
		reqRepo := &mockRequisitionRepo{
			findByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
				return pendingRequisition(id, 500), nil
			},
			transitionStatusFn: func(ctx context.Context, id uuid.UUID, expected approval.Status, change repository.StatusChange) error {
				t.Fatal("transition must not be attempted for a blank reason")
				return nil
			},
		}
		userRepo := &mockUserRepo{getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
			return userWithRole(id, "super_admin"), nil
		}}
		svc := newTestService(reqRepo, userRepo, &mockAuditRepo{})

		_, err := svc.Reject(context.Background(), requisitionID.String(), uuid.New().String(), "   ")
		var vErr *approval.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestEligibility(t *testing.T) {
	requisitionID := uuid.New()
	stored := pendingRequisition(requisitionID, 500)

	reqRepo := &mockRequisitionRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
			return stored, nil
		},
	}

	tests := []struct {
		role        string
		wantApprove bool
		wantReject  bool
	}{
		{"requester", false, false},
		{"finance", true, true},
		{"admin", true, true},
		{"super_admin", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			userRepo := &mockUserRepo{getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				return userWithRole(id, tt.role), nil
			}}
			svc := newTestService(reqRepo, userRepo, &mockAuditRepo{})

			resp, err := svc.Eligibility(context.Background(), requisitionID.String(), uuid.New().String())
			require.NoError(t, err)
			assert.Equal(t, tt.wantApprove, resp.CanApprove)
			assert.Equal(t, tt.wantReject, resp.CanReject)
		})
	}
}

// fakeRequisitionStore implements the conditional-write semantics in memory so
// concurrent approvals can race for real.
type fakeRequisitionStore struct {
	mu          sync.Mutex
	requisition model.Requisition
}

func (s *fakeRequisitionStore) Create(ctx context.Context, req *model.Requisition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requisition = *req
	return nil
}

func (s *fakeRequisitionStore) FindByID(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.requisition
	return &r, nil
}

func (s *fakeRequisitionStore) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
	return s.FindByID(ctx, id)
}

func (s *fakeRequisitionStore) List(ctx context.Context, status string, requesterID *uuid.UUID, page, limit int) ([]model.Requisition, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []model.Requisition{s.requisition}, 1, nil
}

func (s *fakeRequisitionStore) TransitionStatus(ctx context.Context, id uuid.UUID, expected approval.Status, change repository.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requisition.Status != expected {
		return approval.ErrConflict
	}
	s.requisition.Status = change.Next
	if change.FinanceApprovedBy != nil {
		s.requisition.FinanceApprovedBy = change.FinanceApprovedBy
		s.requisition.FinanceApprovedAt = change.FinanceApprovedAt
	}
	if change.SuperAdminApprovedBy != nil {
		s.requisition.SuperAdminApprovedBy = change.SuperAdminApprovedBy
		s.requisition.SuperAdminApprovedAt = change.SuperAdminApprovedAt
	}
	if change.RejectedBy != nil {
		s.requisition.RejectedBy = change.RejectedBy
		s.requisition.RejectedAt = change.RejectedAt
		s.requisition.RejectionReason = change.RejectionReason
	}
	return nil
}

func TestApprove_ConcurrentApproversWriteOneStamp(t *testing.T) {
	requisitionID := uuid.New()
	store := &fakeRequisitionStore{requisition: *pendingRequisition(requisitionID, 500)}
	userRepo := &mockUserRepo{getByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
		return userWithRole(id, "finance"), nil
	}}
	svc := newTestService(store, userRepo, &mockAuditRepo{})

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), requisitionID.String(), uuid.New().String())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, refused int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, approval.ErrInvalidState)
			refused++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, refused)

	final, err := store.FindByID(context.Background(), requisitionID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, final.Status)
	assert.NotNil(t, final.FinanceApprovedBy)
	assert.Nil(t, final.SuperAdminApprovedBy)
}
