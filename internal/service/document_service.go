package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"procurement/internal/apperror"
	"procurement/internal/document"
	"procurement/internal/identity"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type DocumentService interface {
	AttachProforma(ctx context.Context, actor identity.Actor, id uuid.UUID, upload Upload) (RequestResponse, error)
	SubmitReceipt(ctx context.Context, actor identity.Actor, id uuid.UUID, upload Upload) (RequestResponse, error)
	Process(ctx context.Context, actor identity.Actor, upload Upload) (ProcessResult, error)
	OpenDocument(ctx context.Context, actor identity.Actor, id uuid.UUID, kind DocumentKind) (io.ReadCloser, model.DocumentRef, error)
}

// DocumentKind selects one of the documents stored on a request.
type DocumentKind string

const (
	DocumentProforma DocumentKind = "proforma"
	DocumentReceipt  DocumentKind = "receipt"
)

// gate owns document storage and the advisory jobs that follow an upload.
type gate struct {
	requests  repository.RequestRepository
	files     FileStore
	extractor document.Extractor
	validator document.ReceiptValidator
	runner    *AdvisoryRunner
	notifier  Notifier
	logger    *logrus.Logger
}

func newGate(d Deps) *gate {
	return &gate{
		requests:  d.Requests,
		files:     d.Files,
		extractor: d.Extractor,
		validator: d.Validator,
		runner:    d.Advisory,
		notifier:  d.notifier(),
		logger:    d.Logger,
	}
}

// stageProforma stores the upload and points req at it. The previous reference is returned so the
// caller can drop the old file once the change commits.
func (g *gate) stageProforma(ctx context.Context, req *model.PurchaseRequest, up Upload) (*model.DocumentRef, error) {
	ref, err := g.files.Save(ctx, up.Filename, up.Content)
	if err != nil {
		return nil, err
	}
	prev := req.Proforma
	req.Proforma = ref
	req.ProformaExtraction = nil
	req.ProformaAdvisory = model.AdvisoryPending
	req.ProformaWarning = ""
	return prev, nil
}

func (g *gate) discard(ref *model.DocumentRef) {
	if ref == nil {
		return
	}
	if err := g.files.Delete(context.Background(), ref.Key); err != nil {
		g.logger.WithError(err).WithField("key", ref.Key).Warn("failed to remove stored document")
	}
}

func (g *gate) load(ctx context.Context, ref *model.DocumentRef) (document.Document, error) {
	data, err := g.files.Read(ctx, ref.Key)
	if err != nil {
		return document.Document{}, err
	}
	return document.Document{
		Filename:    ref.Filename,
		ContentType: ref.ContentType,
		Digest:      ref.Digest,
		Data:        data,
	}, nil
}

func (g *gate) scheduleExtraction(req *model.PurchaseRequest) {
	if req.Proforma == nil {
		return
	}
	id, ref := req.ID, *req.Proforma
	g.runner.Go("extraction", logrus.Fields{"request_id": id}, func(ctx context.Context) error {
		doc, err := g.load(ctx, &ref)
		var out *model.ProformaExtraction
		if err == nil {
			out, err = g.extractor.Extract(ctx, doc)
		}

		result := repository.ProformaAnalysis{Extraction: out, State: model.AdvisoryAvailable}
		if err != nil {
			result = repository.ProformaAnalysis{State: model.AdvisoryUnavailable, Warning: advisoryWarning(err)}
		}

		// The deadline covers the collaborator only; the outcome is always recorded.
		saveCtx := context.WithoutCancel(ctx)
		if saveErr := g.requests.SaveProformaAnalysis(saveCtx, id, ref.Key, result); saveErr != nil {
			if errors.Is(saveErr, repository.ErrNotFound) {
				g.logger.WithField("request_id", id).Debug("dropping extraction for a replaced or deleted proforma")
				return err
			}
			return fmt.Errorf("failed to save extraction: %w", saveErr)
		}
		g.announce(saveCtx, id)
		return err
	})
}

func (g *gate) scheduleReceiptValidation(req *model.PurchaseRequest) {
	if req.Receipt == nil {
		return
	}
	id, ref := req.ID, *req.Receipt
	want := document.ReceiptExpectation{
		PurchaseOrderNumber: req.PurchaseOrderNumber(),
		Title:               req.Title,
		Description:         req.Description,
		Amount:              req.Amount,
	}
	if req.ProformaExtraction != nil {
		want.Proforma = req.ProformaExtraction.Clone()
	}

	g.runner.Go("receipt_validation", logrus.Fields{"request_id": id}, func(ctx context.Context) error {
		doc, err := g.load(ctx, &ref)
		var out *model.ReceiptValidation
		if err == nil {
			out, err = g.validator.ValidateReceipt(ctx, doc, want)
		}

		result := repository.ReceiptAnalysis{Validation: out, State: model.AdvisoryAvailable}
		if err != nil {
			result = repository.ReceiptAnalysis{State: model.AdvisoryUnavailable, Warning: advisoryWarning(err)}
		}

		saveCtx := context.WithoutCancel(ctx)
		if saveErr := g.requests.SaveReceiptValidation(saveCtx, id, ref.Key, result); saveErr != nil {
			if errors.Is(saveErr, repository.ErrNotFound) {
				return err
			}
			return fmt.Errorf("failed to save receipt validation: %w", saveErr)
		}
		if out != nil && out.Flagged() {
			g.logger.WithFields(logrus.Fields{"request_id": id, "discrepancies": out.Discrepancies}).
				Warn("receipt does not match the purchase order")
		}
		g.announce(saveCtx, id)
		return err
	})
}

func (g *gate) announce(ctx context.Context, id uuid.UUID) {
	req, err := g.requests.FindByID(ctx, id)
	if err != nil {
		return
	}
	publish(g.notifier, model.EventAdvisoryUpdated, req)
}

type documentService struct {
	*gate
	tx      repository.TransactionManager
	audit   repository.AuditRepository
	metrics *Metrics
}

func NewDocumentService(d Deps) DocumentService {
	return &documentService{
		gate:    newGate(d),
		tx:      d.Tx,
		audit:   d.Audit,
		metrics: d.Metrics,
	}
}

// AttachProforma replaces the proforma of a pending request and schedules extraction.
func (s *documentService) AttachProforma(ctx context.Context, actor identity.Actor, id uuid.UUID, upload Upload) (resp RequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.AttachProforma", trace.WithAttributes(attribute.String("request.id", id.String())))
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
		if prev, err = s.stageProforma(txCtx, found, upload); err != nil {
			return err
		}
		staged = found.Proforma
		if err := s.requests.UpdateDetails(txCtx, found); err != nil {
			return fmt.Errorf("failed to attach proforma: %w", notFound(err))
		}
		if err := writeAudit(txCtx, s.audit, actor, model.ActionAttachProforma, id, map[string]interface{}{
			"filename": staged.Filename,
			"digest":   staged.Digest,
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

	s.discard(prev)
	s.scheduleExtraction(req)
	publish(s.notifier, model.EventRequestUpdated, req)
	return toRequestResponse(req), nil
}

// SubmitReceipt records the receipt for an approved request. Validation runs in the background and
// can only flag the request.
func (s *documentService) SubmitReceipt(ctx context.Context, actor identity.Actor, id uuid.UUID, upload Upload) (resp RequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.SubmitReceipt", trace.WithAttributes(attribute.String("request.id", id.String())))
	defer func() { endSpan(span, err) }()

	var req *model.PurchaseRequest
	var staged *model.DocumentRef
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFound(err)
		}
		if err := workflow.CheckReceipt(actor, found); err != nil {
			return err
		}
		if staged, err = s.files.Save(txCtx, upload.Filename, upload.Content); err != nil {
			return err
		}
		if err := s.requests.AttachReceipt(txCtx, id, staged); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.ErrReceiptExists
			}
			return fmt.Errorf("failed to attach receipt: %w", err)
		}
		if err := writeAudit(txCtx, s.audit, actor, model.ActionSubmitReceipt, id, map[string]interface{}{
			"filename":       staged.Filename,
			"digest":         staged.Digest,
			"purchase_order": found.PurchaseOrderNumber(),
		}); err != nil {
			return err
		}
		found.Receipt = staged
		found.ReceiptAdvisory = model.AdvisoryPending
		req = found
		return nil
	})
	if err != nil {
		s.discard(staged)
		s.metrics.countConflict(err)
		return RequestResponse{}, err
	}

	s.logger.WithFields(logrus.Fields{"request_id": id, "actor_id": actor.ID}).Info("receipt submitted")
	s.scheduleReceiptValidation(req)
	publish(s.notifier, model.EventReceiptSubmitted, req)
	return toRequestResponse(req), nil
}

// Process extracts a document synchronously without attaching it to a request. Collaborator
// failures produce an empty result with a warning.
func (s *documentService) Process(ctx context.Context, actor identity.Actor, upload Upload) (res ProcessResult, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Process")
	defer func() { endSpan(span, err) }()

	if !actor.Role.Valid() {
		return ProcessResult{}, apperror.ErrAuthorization
	}
	data, contentType, err := s.files.Inspect(upload.Content)
	if err != nil {
		return ProcessResult{}, err
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.runner.timeout)
	defer cancel()
	out, extractErr := s.extractor.Extract(jobCtx, document.Document{
		Filename:    upload.Filename,
		ContentType: contentType,
		Data:        data,
	})
	s.metrics.advisory.WithLabelValues("process", outcome(extractErr)).Inc()
	if extractErr != nil {
		s.logger.WithError(extractErr).WithField("actor_id", actor.ID).Warn("document processing degraded")
		return ProcessResult{ContentType: contentType, Warning: advisoryWarning(extractErr)}, nil
	}
	return ProcessResult{Extraction: out, ContentType: contentType}, nil
}

// OpenDocument streams a stored document of a request the actor can see. The caller closes it.
func (s *documentService) OpenDocument(ctx context.Context, actor identity.Actor, id uuid.UUID, kind DocumentKind) (io.ReadCloser, model.DocumentRef, error) {
	if !actor.Role.Valid() {
		return nil, model.DocumentRef{}, apperror.ErrAuthorization
	}
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, model.DocumentRef{}, notFound(err)
	}
	if !actor.CanSee(req.CreatedBy) {
		return nil, model.DocumentRef{}, apperror.ErrRequestNotFound
	}

	var ref *model.DocumentRef
	switch kind {
	case DocumentProforma:
		ref = req.Proforma
	case DocumentReceipt:
		ref = req.Receipt
	default:
		return nil, model.DocumentRef{}, apperror.Wrap(apperror.ErrInvalidInput, "unknown document kind %q", kind)
	}
	if ref == nil {
		return nil, model.DocumentRef{}, apperror.ErrDocumentNotFound
	}

	rc, err := s.files.Open(ctx, ref.Key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.DocumentRef{}, apperror.ErrDocumentNotFound
		}
		return nil, model.DocumentRef{}, fmt.Errorf("failed to open %s: %w", kind, err)
	}
	return rc, *ref, nil
}
