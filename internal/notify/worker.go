package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shyamb/lesson-notifier/internal/domain"
)

// WorkerConfig contains dispatch loop configuration.
type WorkerConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	ScanInterval   time.Duration
	DefaultSubject string
}

// DefaultWorkerConfig returns default dispatch loop configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:      5,
		PollInterval:   5 * time.Second,
		ScanInterval:   30 * time.Minute,
		DefaultSubject: "Guitar Lesson Update",
	}
}

// Worker drains pending notifications on a fixed cadence and periodically
// triggers the reminder scheduler. All work happens on a single loop:
// the reminder scan and the batch drain never run concurrently.
type Worker struct {
	config    WorkerConfig
	repo      Repository
	sender    Sender
	renderer  *Renderer
	reminders *ReminderScheduler

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	delivered int
	lastScan  time.Time
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig, repo Repository, sender Sender, renderer *Renderer, reminders *ReminderScheduler) *Worker {
	return &Worker{
		config:    config,
		repo:      repo,
		sender:    sender,
		renderer:  renderer,
		reminders: reminders,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the worker loop.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker",
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
		"scan_interval", w.config.ScanInterval,
	)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker. An in-flight cycle is allowed to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("notification worker stopped", "delivered", w.Delivered())
}

// Delivered returns the cumulative count of successfully sent notifications.
func (w *Worker) Delivered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.delivered
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// cycle runs one iteration: the reminder scan when due, then a batch drain.
// A reminder created here is already visible to this cycle's drain.
func (w *Worker) cycle(ctx context.Context) {
	now := time.Now()
	if now.Sub(w.lastScan) >= w.config.ScanInterval {
		if _, err := w.reminders.Run(ctx, now); err != nil {
			slog.Error("reminder scan failed", "error", err)
		}
		// The timestamp resets even on failure: the next scan happens one
		// interval later, not immediately.
		w.lastScan = now
	}

	w.processBatch(ctx)
}

func (w *Worker) processBatch(ctx context.Context) {
	items, err := w.repo.FetchPending(ctx, w.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch pending notifications", "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	slog.Debug("processing notifications", "count", len(items))
	recordQueueFetched(len(items))

	for _, item := range items {
		w.processRecord(ctx, item)
	}
}

// processRecord applies the routing policy to one pending notification.
// First matching rule wins and exactly one status write follows.
func (w *Worker) processRecord(ctx context.Context, n *domain.Notification) {
	switch {
	case n.Type == domain.NotificationTypeWhatsApp:
		w.skip(ctx, n, "WhatsApp notifications not yet implemented")
		return
	case n.Type != domain.NotificationTypeEmail:
		w.skip(ctx, n, fmt.Sprintf("unknown notification type: %s", n.Type))
		return
	}

	if n.Recipient == "" || !strings.Contains(n.Recipient, "@") {
		w.fail(ctx, n, fmt.Sprintf("invalid email recipient: %s", n.Recipient))
		return
	}

	subject := n.Subject
	if subject == "" {
		subject = w.config.DefaultSubject
	}

	slog.Info("processing notification",
		"id", n.ID,
		"recipient", n.Recipient,
		"subject", subject,
		"cc_count", len(n.CC),
	)

	msg := Message{
		To:       n.Recipient,
		CC:       n.CC,
		Subject:  subject,
		Body:     n.Message,
		HTMLBody: w.renderer.RenderHTML(n.Message),
	}

	start := time.Now()
	err := w.sender.Send(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		slog.Error("failed to send notification",
			"id", n.ID,
			"recipient", n.Recipient,
			"error", err,
		)
		w.fail(ctx, n, "SMTP error")
		return
	}

	sentAt := time.Now()
	if markErr := w.repo.MarkSent(ctx, n.ID, sentAt); markErr != nil {
		slog.Error("failed to mark as sent", "id", n.ID, "error", markErr)
	}

	w.mu.Lock()
	w.delivered++
	w.mu.Unlock()

	recordProcessed(string(n.Type), "sent")
	recordSendDuration(duration)

	slog.Info("notification sent", "id", n.ID, "recipient", n.Recipient, "duration", duration)
}

func (w *Worker) skip(ctx context.Context, n *domain.Notification, reason string) {
	slog.Info("skipping notification", "id", n.ID, "type", n.Type, "reason", reason)
	if err := w.repo.MarkSkipped(ctx, n.ID, reason); err != nil {
		slog.Error("failed to mark as skipped", "id", n.ID, "error", err)
	}
	recordProcessed(string(n.Type), "skipped")
}

func (w *Worker) fail(ctx context.Context, n *domain.Notification, reason string) {
	slog.Warn("notification failed", "id", n.ID, "recipient", n.Recipient, "reason", reason)
	if err := w.repo.MarkFailed(ctx, n.ID, reason); err != nil {
		slog.Error("failed to mark as failed", "id", n.ID, "error", err)
	}
	recordProcessed(string(n.Type), "failed")
}
