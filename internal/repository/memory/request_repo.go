package memory

import (
	"context"
	"sort"
	"strings"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

type requestRecord struct {
	req *model.PurchaseRequest
}

type RequestRepository struct {
	store *Store
}

func NewRequestRepository(store *Store) *RequestRepository {
	return &RequestRepository{store: store}
}

// view returns a detached copy with the ledger attached. Callers hold s.mu.
func (s *Store) view(id uuid.UUID) (*model.PurchaseRequest, bool) {
	rec, ok := s.requests[id]
	if !ok {
		return nil, false
	}
	out := rec.req.Clone()
	out.Approvals = s.approvalsOf(id)
	return out, true
}

// replace swaps the stored request and registers the previous value for rollback. Callers hold s.mu.
func (s *Store) replace(ctx context.Context, id uuid.UUID, next *model.PurchaseRequest) {
	rec := s.requests[id]
	prev := rec.req
	next.Approvals = nil
	rec.req = next
	onRollback(ctx, func() {
		if cur, ok := s.requests[id]; ok {
			cur.req = prev
		}
	})
}

func (r *RequestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	s := r.store
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if inTx(ctx) {
		if err := s.acquire(ctx, req.ID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return repository.ErrDuplicate
	}
	now := s.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = model.StatusPending
	}
	if req.ProformaAdvisory == "" {
		req.ProformaAdvisory = model.AdvisoryNone
	}
	if req.ReceiptAdvisory == "" {
		req.ReceiptAdvisory = model.AdvisoryNone
	}

	stored := req.Clone()
	stored.Approvals = nil
	s.requests[req.ID] = &requestRecord{req: stored}
	id := req.ID
	onRollback(ctx, func() { delete(s.requests, id) })
	return nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	req, ok := r.store.settledView(ctx, id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return req, nil
}

// settledView reads id once no other transaction holds its lock.
func (s *Store) settledView(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, bool) {
	defer s.guard(ctx, id)()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(id)
}

func (r *RequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	if err := r.store.acquire(ctx, id); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *RequestRepository) List(ctx context.Context, filter repository.RequestFilter) ([]model.PurchaseRequest, int64, error) {
	s := r.store
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.requests))
	for id := range s.requests {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	query := strings.TrimSpace(filter.Query)
	var matched []model.PurchaseRequest
	for _, id := range ids {
		req, ok := s.settledView(ctx, id)
		if !ok {
			continue
		}
		if filter.CreatedBy != "" && req.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.ReceiptFlagged != nil && req.ReceiptFlagged != *filter.ReceiptFlagged {
			continue
		}
		if query != "" && !fuzzy.MatchNormalizedFold(query, req.Title) && !fuzzy.MatchNormalizedFold(query, req.Description) {
			continue
		}
		matched = append(matched, *req)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Limit > 0 {
		start := filter.Offset()
		if start >= len(matched) {
			return []model.PurchaseRequest{}, total, nil
		}
		end := start + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (r *RequestRepository) UpdateDetails(ctx context.Context, req *model.PurchaseRequest) error {
	return r.mutate(ctx, req.ID, func(next *model.PurchaseRequest) bool {
		next.Title = req.Title
		next.Description = req.Description
		next.Amount = req.Amount
		next.Proforma = nil
		if req.Proforma != nil {
			p := *req.Proforma
			next.Proforma = &p
		}
		next.ProformaExtraction = nil
		if req.ProformaExtraction != nil {
			next.ProformaExtraction = req.ProformaExtraction.Clone()
		}
		next.ProformaAdvisory = req.ProformaAdvisory
		next.ProformaWarning = req.ProformaWarning
		return true
	})
}

func (r *RequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	return r.mutate(ctx, id, func(next *model.PurchaseRequest) bool {
		next.Status = status
		return true
	})
}

func (r *RequestRepository) SaveProformaAnalysis(ctx context.Context, id uuid.UUID, proformaKey string, result repository.ProformaAnalysis) error {
	return r.mutate(ctx, id, func(next *model.PurchaseRequest) bool {
		if next.Proforma == nil || next.Proforma.Key != proformaKey {
			return false
		}
		next.ProformaExtraction = nil
		if result.Extraction != nil {
			next.ProformaExtraction = result.Extraction.Clone()
		}
		next.ProformaAdvisory = result.State
		next.ProformaWarning = result.Warning
		return true
	})
}

func (r *RequestRepository) AttachReceipt(ctx context.Context, id uuid.UUID, ref *model.DocumentRef) error {
	return r.mutate(ctx, id, func(next *model.PurchaseRequest) bool {
		if next.Receipt != nil {
			return false
		}
		c := *ref
		next.Receipt = &c
		next.ReceiptAdvisory = model.AdvisoryPending
		return true
	})
}

func (r *RequestRepository) SaveReceiptValidation(ctx context.Context, id uuid.UUID, receiptKey string, result repository.ReceiptAnalysis) error {
	return r.mutate(ctx, id, func(next *model.PurchaseRequest) bool {
		if next.Receipt == nil || next.Receipt.Key != receiptKey {
			return false
		}
		next.ReceiptValidation = nil
		next.ReceiptFlagged = false
		if result.Validation != nil {
			next.ReceiptValidation = result.Validation.Clone()
			next.ReceiptFlagged = result.Validation.Flagged()
		}
		next.ReceiptAdvisory = result.State
		next.ReceiptWarning = result.Warning
		return true
	})
}

func (r *RequestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	s := r.store
	defer s.guard(ctx, id)()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	ledger := s.ledger[id]
	delete(s.requests, id)
	delete(s.ledger, id)
	onRollback(ctx, func() {
		s.requests[id] = rec
		if ledger != nil {
			s.ledger[id] = ledger
		}
	})
	return nil
}

// mutate applies fn to a copy of the stored request. fn returning false leaves the record untouched
// and reports ErrNotFound, mirroring a conditional UPDATE that matched no rows.
func (r *RequestRepository) mutate(ctx context.Context, id uuid.UUID, fn func(next *model.PurchaseRequest) bool) error {
	s := r.store
	defer s.guard(ctx, id)()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	next := rec.req.Clone()
	if !fn(next) {
		return repository.ErrNotFound
	}
	next.UpdatedAt = s.now()
	s.replace(ctx, id, next)
	return nil
}
