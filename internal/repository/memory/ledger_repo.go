package memory

import (
	"context"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type approvalRecord struct {
	approval model.Approval
}

type auditRecord struct {
	entry model.AuditLog
}

// approvalsOf returns the ledger of a request in append order. Callers hold s.mu.
func (s *Store) approvalsOf(id uuid.UUID) []model.Approval {
	rows := s.ledger[id]
	out := make([]model.Approval, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.approval)
	}
	return out
}

type ApprovalRepository struct {
	store *Store
}

func NewApprovalRepository(store *Store) *ApprovalRepository {
	return &ApprovalRepository{store: store}
}

func (r *ApprovalRepository) Append(ctx context.Context, approval *model.Approval) error {
	s := r.store
	defer s.guard(ctx, approval.RequestID)()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[approval.RequestID]; !ok {
		return repository.ErrNotFound
	}
	for _, row := range s.ledger[approval.RequestID] {
		if row.approval.ApproverID == approval.ApproverID {
			return repository.ErrDuplicate
		}
	}
	if approval.ID == uuid.Nil {
		approval.ID = uuid.New()
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = s.now()
	}
	s.ledger[approval.RequestID] = append(s.ledger[approval.RequestID], approvalRecord{approval: *approval})

	requestID, rowID := approval.RequestID, approval.ID
	onRollback(ctx, func() {
		rows := s.ledger[requestID]
		for i, row := range rows {
			if row.approval.ID == rowID {
				s.ledger[requestID] = append(rows[:i:i], rows[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *ApprovalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	s := r.store
	defer s.guard(ctx, requestID)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvalsOf(requestID), nil
}

type AuditRepository struct {
	store *Store
}

func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

func (r *AuditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.audit = append(s.audit, auditRecord{entry: *entry})

	rowID := entry.ID
	onRollback(ctx, func() {
		for i, row := range s.audit {
			if row.entry.ID == rowID {
				s.audit = append(s.audit[:i:i], s.audit[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityID string) ([]model.AuditLog, error) {
	s := r.store
	if id, err := uuid.Parse(entityID); err == nil {
		defer s.guard(ctx, id)()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AuditLog
	for _, row := range s.audit {
		if row.entry.EntityID == entityID {
			out = append(out, row.entry)
		}
	}
	return out, nil
}

var (
	_ repository.RequestRepository  = (*RequestRepository)(nil)
	_ repository.ApprovalRepository = (*ApprovalRepository)(nil)
	_ repository.AuditRepository    = (*AuditRepository)(nil)
	_ repository.TransactionManager = (*TransactionManager)(nil)
)
