package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/internal/apperror"
	"procurement/internal/identity"
	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.ErrRequestNotFound
	}
	return err
}

func writeAudit(ctx context.Context, repo repository.AuditRepository, actor identity.Actor, action string, id uuid.UUID, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := model.AuditLog{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		EntityID:  id.String(),
		Details:   string(payload),
	}
	if err := repo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func publish(n Notifier, typ model.EventType, req *model.PurchaseRequest) {
	resp := toRequestResponse(req)
	n.Publish(model.RequestEvent{
		Type:       typ,
		RequestID:  req.ID,
		OwnerID:    req.CreatedBy,
		Data:       resp,
		OccurredAt: time.Now().UTC(),
	})
}

func validateTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ErrTitleRequired
	}
	if len(s) > 255 {
		return "", apperror.Wrap(apperror.ErrInvalidInput, "title is longer than 255 characters")
	}
	return s, nil
}

func validateDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ErrDescriptionNeeded
	}
	return s, nil
}

// parseAmount accepts a decimal string with at most two fractional digits and a positive value.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, apperror.Wrap(apperror.ErrInvalidAmount, "%q is not a number", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, apperror.ErrInvalidAmount
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return decimal.Zero, apperror.Wrap(apperror.ErrInvalidAmount, "at most two decimal places")
	}
	if d.GreaterThanOrEqual(decimal.New(1, 16)) {
		return decimal.Zero, apperror.Wrap(apperror.ErrInvalidAmount, "amount is too large")
	}
	return d.Round(2), nil
}
