package service

import (
	"context"
	"fmt"

	"procurement/internal/apperror"
	"procurement/internal/identity"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"
	"procurement/pkg/pagination"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RequestService interface {
	Create(ctx context.Context, actor identity.Actor, input CreateRequestInput, proforma *Upload) (RequestResponse, error)
	Update(ctx context.Context, actor identity.Actor, id uuid.UUID, input UpdateRequestInput, proforma *Upload) (RequestResponse, error)
	Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error
	Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (RequestResponse, error)
	List(ctx context.Context, actor identity.Actor, filter ListFilter) ([]RequestResponse, int64, error)
	History(ctx context.Context, actor identity.Actor, id uuid.UUID) ([]model.AuditLog, error)
}

type requestService struct {
	*gate
	tx      repository.TransactionManager
	audit   repository.AuditRepository
	metrics *Metrics
}

func NewRequestService(d Deps) RequestService {
	return &requestService{
		gate:    newGate(d),
		tx:      d.Tx,
		audit:   d.Audit,
		metrics: d.Metrics,
	}
}

// editable is the audited view of the fields a creator may change.
type editable struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Proforma    string `json:"proforma,omitempty"`
}

func editableOf(req *model.PurchaseRequest) editable {
	e := editable{Title: req.Title, Description: req.Description, Amount: req.Amount.StringFixed(2)}
	if req.Proforma != nil {
		e.Proforma = req.Proforma.Digest
	}
	return e
}

func (s *requestService) Create(ctx context.Context, actor identity.Actor, input CreateRequestInput, proforma *Upload) (resp RequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "RequestService.Create")
	defer func() { endSpan(span, err) }()

	if !actor.Role.CanCreateRequests() || actor.ID == "" {
		return RequestResponse{}, apperror.ErrCannotCreate
	}
	title, err := validateTitle(input.Title)
	if err != nil {
		return RequestResponse{}, err
	}
	description, err := validateDescription(input.Description)
	if err != nil {
		return RequestResponse{}, err
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		return RequestResponse{}, err
	}

	req := &model.PurchaseRequest{
		ID:               uuid.New(),
		Title:            title,
		Description:      description,
		Amount:           amount,
		Status:           model.StatusPending,
		CreatedBy:        actor.ID,
		ProformaAdvisory: model.AdvisoryNone,
		ReceiptAdvisory:  model.AdvisoryNone,
	}
	if proforma != nil {
		if _, err := s.stageProforma(ctx, req, *proforma); err != nil {
			return RequestResponse{}, err
		}
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create purchase request: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionCreateRequest, req.ID, map[string]interface{}{
			"title":  req.Title,
			"amount": req.Amount.StringFixed(2),
		})
	})
	if err != nil {
		s.discard(req.Proforma)
		return RequestResponse{}, err
	}

	s.logger.WithFields(logrus.Fields{"request_id": req.ID, "actor_id": actor.ID}).Info("purchase request created")
	s.scheduleExtraction(req)
	publish(s.notifier, model.EventRequestCreated, req)
	return toRequestResponse(req), nil
}

// Update edits a pending request. Existing approvals are kept.
func (s *requestService) Update(ctx context.Context, actor identity.Actor, id uuid.UUID, input UpdateRequestInput, proforma *Upload) (resp RequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "RequestService.Update", trace.WithAttributes(attribute.String("request.id", id.String())))
	defer func() { endSpan(span, err) }()

	var req *model.PurchaseRequest
	var prev, staged *model.DocumentRef
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFound(err)
		}
		if err := workflow.CheckOwnerMutation(actor, found); err != nil {
			return err
		}
		if input.empty() && proforma == nil {
			return apperror.Wrap(apperror.ErrInvalidInput, "nothing to update")
		}

		before := editableOf(found)
		if input.Title != nil {
			if found.Title, err = validateTitle(*input.Title); err != nil {
				return err
			}
		}
		if input.Description != nil {
			if found.Description, err = validateDescription(*input.Description); err != nil {
				return err
			}
		}
		if input.Amount != nil {
			if found.Amount, err = parseAmount(*input.Amount); err != nil {
				return err
			}
		}
		if proforma != nil {
			if prev, err = s.stageProforma(txCtx, found, *proforma); err != nil {
				return err
			}
			staged = found.Proforma
		}

		if err := s.requests.UpdateDetails(txCtx, found); err != nil {
			return fmt.Errorf("failed to update purchase request: %w", notFound(err))
		}
		patch, err := jsondiff.Compare(before, editableOf(found))
		if err != nil {
			return fmt.Errorf("failed to diff purchase request: %w", err)
		}
		if err := writeAudit(txCtx, s.audit, actor, model.ActionUpdateRequest, id, map[string]interface{}{
			"changes": patch,
		}); err != nil {
			return err
		}
		req = found
		return nil
	})
	if err != nil {
		s.discard(staged)
		s.metrics.countConflict(err)
		return RequestResponse{}, err
	}

	if staged != nil {
		s.discard(prev)
		s.scheduleExtraction(req)
	}
	publish(s.notifier, model.EventRequestUpdated, req)
	return toRequestResponse(req), nil
}

// Delete removes a pending request with its ledger. Stored documents are removed after commit.
func (s *requestService) Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "RequestService.Delete", trace.WithAttributes(attribute.String("request.id", id.String())))
	defer func() { endSpan(span, err) }()

	var req *model.PurchaseRequest
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFound(err)
		}
		if err := workflow.CheckOwnerMutation(actor, found); err != nil {
			return err
		}
		if err := s.requests.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete purchase request: %w", notFound(err))
		}
		req = found
		return writeAudit(txCtx, s.audit, actor, model.ActionDeleteRequest, id, map[string]interface{}{
			"title": found.Title,
		})
	})
	if err != nil {
		s.metrics.countConflict(err)
		return err
	}

	s.discard(req.Proforma)
	s.discard(req.Receipt)
	s.logger.WithFields(logrus.Fields{"request_id": id, "actor_id": actor.ID}).Info("purchase request deleted")
	publish(s.notifier, model.EventRequestDeleted, req)
	return nil
}

// Get returns a request the actor may see. Requests outside the actor's visibility are reported
// as not found.
func (s *requestService) Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (RequestResponse, error) {
	req, err := s.visible(ctx, actor, id)
	if err != nil {
		return RequestResponse{}, err
	}
	return toRequestResponse(req), nil
}

func (s *requestService) List(ctx context.Context, actor identity.Actor, filter ListFilter) ([]RequestResponse, int64, error) {
	if !actor.Role.Valid() {
		return nil, 0, apperror.ErrAuthorization
	}
	page := pagination.Normalize(filter.Page, filter.Limit)
	repoFilter := repository.RequestFilter{
		Status:         filter.Status,
		Query:          filter.Query,
		ReceiptFlagged: filter.ReceiptFlagged,
		Page:           page.Page,
		Limit:          page.Limit,
	}
	if !actor.Role.SeesAllRequests() {
		repoFilter.CreatedBy = actor.ID
	}

	requests, total, err := s.requests.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, toRequestResponse(&requests[i]))
	}
	return result, total, nil
}

func (s *requestService) History(ctx context.Context, actor identity.Actor, id uuid.UUID) ([]model.AuditLog, error) {
	if _, err := s.visible(ctx, actor, id); err != nil {
		return nil, err
	}
	logs, err := s.audit.ListByEntity(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}

func (s *requestService) visible(ctx context.Context, actor identity.Actor, id uuid.UUID) (*model.PurchaseRequest, error) {
	if !actor.Role.Valid() {
		return nil, apperror.ErrAuthorization
	}
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !actor.CanSee(req.CreatedBy) {
		return nil, apperror.ErrRequestNotFound
	}
	return req, nil
}
