package service

import "procurement/internal/model"

// Notifier receives request events after the change is committed. Publish must not block.
type Notifier interface {
	Publish(event model.RequestEvent)
}

type nopNotifier struct{}

func (nopNotifier) Publish(model.RequestEvent) {}
