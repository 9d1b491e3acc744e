package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"widgethub/events"
	"widgethub/utils"
)

// WebhookTargets resolves a project's webhook endpoint and signing secret.
type WebhookTargets interface {
	WebhookTarget(ctx context.Context, projectID uint) (endpoint, secret string, err error)
}

// WebhookSender delivers one event to one endpoint.
type WebhookSender interface {
	Deliver(endpoint, secret string, evt events.IntakeEvent) error
}

// NotifyWorker drains intake events from a bounded queue and fans them out
// to project webhooks and the message bus. Delivery is fire and forget: a
// full queue drops the event and failures are only logged.
type NotifyWorker struct {
	queue     chan events.IntakeEvent
	targets   WebhookTargets
	webhooks  WebhookSender
	publisher events.Publisher
	timeout   time.Duration
	Logger    *logrus.Entry

	dropped atomic.Int64
}

func NewNotifyWorker(size int, targets WebhookTargets, webhooks WebhookSender, publisher events.Publisher, logger *logrus.Entry) *NotifyWorker {
	if size <= 0 {
		size = 256
	}
	return &NotifyWorker{
		queue:     make(chan events.IntakeEvent, size),
		targets:   targets,
		webhooks:  webhooks,
		publisher: publisher,
		timeout:   10 * time.Second,
		Logger:    logger,
	}
}

// Notify enqueues evt without blocking.
func (nw *NotifyWorker) Notify(evt events.IntakeEvent) {
	select {
	case nw.queue <- evt:
	default:
		nw.dropped.Add(1)
		nw.Logger.WithFields(logrus.Fields{
			"event_id":   evt.ID,
			"event_type": evt.Type,
			"project_id": evt.ProjectID,
		}).Warn("Notification queue full, dropping event")
	}
}

// Dropped is the number of events discarded because the queue was full.
func (nw *NotifyWorker) Dropped() int64 {
	return nw.dropped.Load()
}

// Start processes events until ctx is cancelled, then drains what is left.
func (nw *NotifyWorker) Start(ctx context.Context) {
	nw.Logger.Info("Notify worker started")

	for {
		select {
		case <-ctx.Done():
			nw.drain()
			nw.Logger.Info("Notify worker shutting down...")
			return
		case evt := <-nw.queue:
			nw.process(evt)
		}
	}
}

func (nw *NotifyWorker) drain() {
	for {
		select {
		case evt := <-nw.queue:
			nw.process(evt)
		default:
			return
		}
	}
}

func (nw *NotifyWorker) process(evt events.IntakeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), nw.timeout)
	defer cancel()

	fields := map[string]interface{}{
		"event_id":   evt.ID,
		"event_type": string(evt.Type),
		"project_id": evt.ProjectID,
	}

	if nw.targets != nil && nw.webhooks != nil {
		endpoint, secret, err := nw.targets.WebhookTarget(ctx, evt.ProjectID)
		switch {
		case err != nil:
			utils.LogError("webhook_target", err, fields)
		case endpoint != "":
			if err := nw.webhooks.Deliver(endpoint, secret, evt); err != nil {
				utils.LogError("webhook_delivery", err, fields)
			} else {
				utils.LogEvent("webhook_delivered", fields)
			}
		}
	}

	if nw.publisher != nil {
		if err := nw.publisher.Publish(ctx, evt); err != nil {
			utils.LogError("event_publish", err, fields)
		}
	}
}
