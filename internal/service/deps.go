package service

import (
	"context"
	"io"

	"procurement/internal/document"
	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/sirupsen/logrus"
)

// FileStore keeps uploaded documents.
type FileStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (*model.DocumentRef, error)
	Inspect(r io.Reader) ([]byte, string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Deps wires the services. Notifier may be nil.
type Deps struct {
	Tx        repository.TransactionManager
	Requests  repository.RequestRepository
	Approvals repository.ApprovalRepository
	Audit     repository.AuditRepository
	Files     FileStore
	Extractor document.Extractor
	Validator document.ReceiptValidator
	Advisory  *AdvisoryRunner
	Notifier  Notifier
	Metrics   *Metrics
	Logger    *logrus.Logger
}

func (d Deps) notifier() Notifier {
	if d.Notifier == nil {
		return nopNotifier{}
	}
	return d.Notifier
}
