package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"procurement/internal/apperror"
	"procurement/internal/identity"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ApprovalService interface {
	Decide(ctx context.Context, actor identity.Actor, id uuid.UUID, decision workflow.Decision, comments string) (RequestResponse, error)
}

type approvalService struct {
	tx        repository.TransactionManager
	requests  repository.RequestRepository
	approvals repository.ApprovalRepository
	audit     repository.AuditRepository
	notifier  Notifier
	metrics   *Metrics
	logger    *logrus.Logger
}

func NewApprovalService(d Deps) ApprovalService {
	return &approvalService{
		tx:        d.Tx,
		requests:  d.Requests,
		approvals: d.Approvals,
		audit:     d.Audit,
		notifier:  d.notifier(),
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// Decide records one approver's decision and recomputes status from the ledger. The request row is
// locked for the whole transaction so decisions on the same request are serialized.
func (s *approvalService) Decide(ctx context.Context, actor identity.Actor, id uuid.UUID, decision workflow.Decision, comments string) (resp RequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "ApprovalService.Decide", trace.WithAttributes(
		attribute.String("request.id", id.String()),
		attribute.String("decision", decision.String()),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer func() { endSpan(span, err) }()

	var req *model.PurchaseRequest
	var from model.Status
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFound(err)
		}
		if err := workflow.CheckDecision(actor, found, decision, comments); err != nil {
			return err
		}

		row := &model.Approval{
			RequestID:    id,
			ApproverID:   actor.ID,
			ApproverRole: actor.Role,
			Approved:     decision == workflow.Approve,
			Comments:     strings.TrimSpace(comments),
		}
		if err := s.approvals.Append(txCtx, row); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.ErrAlreadyDecided
			}
			return fmt.Errorf("failed to record decision: %w", notFound(err))
		}

		ledger, err := s.approvals.ListByRequest(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to reload approvals: %w", err)
		}
		from = found.Status
		next := workflow.DeriveStatus(ledger)

		action := model.ActionApproveRequest
		if decision == workflow.Reject {
			action = model.ActionRejectRequest
		}
		if err := writeAudit(txCtx, s.audit, actor, action, id, map[string]interface{}{
			"comments": row.Comments,
		}); err != nil {
			return err
		}

		if next != from {
			if err := s.requests.UpdateStatus(txCtx, id, next); err != nil {
				return fmt.Errorf("failed to update status: %w", notFound(err))
			}
			if err := writeAudit(txCtx, s.audit, actor, model.ActionStatusChanged, id, map[string]interface{}{
				"from": from,
				"to":   next,
			}); err != nil {
				return err
			}
		}

		found.Approvals = ledger
		found.Status = next
		req = found
		return nil
	})
	if err != nil {
		s.metrics.countConflict(err)
		return RequestResponse{}, err
	}

	level, _ := actor.Role.ApprovalLevel()
	s.metrics.decisions.WithLabelValues(decision.String(), strconv.Itoa(level)).Inc()
	fields := logrus.Fields{"request_id": id, "actor_id": actor.ID, "decision": decision.String()}
	if req.Status != from {
		s.metrics.transitions.WithLabelValues(string(from), string(req.Status)).Inc()
		fields["status"] = req.Status
	}
	s.logger.WithFields(fields).Info("decision recorded")

	publish(s.notifier, model.EventRequestDecided, req)
	return toRequestResponse(req), nil
}
