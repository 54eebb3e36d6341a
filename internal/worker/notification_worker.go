package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/events"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/ayo6706/wallet-transfer/internal/observability"
	"go.uber.org/zap"
)

const workerName = "notification"

// EventSource yields committed transfer events.
type EventSource interface {
	Pop(ctx context.Context, n int) ([]events.TransferEvent, error)
}

// Requeuer puts an event back for a later run.
type Requeuer interface {
	Requeue(ctx context.Context, ev events.TransferEvent) error
}

// AuditWriter persists one audit entry.
type AuditWriter interface {
	Write(ctx context.Context, entry models.AuditEntry) error
}

// Notifier tells account owners about a transfer.
type Notifier interface {
	Notify(ctx context.Context, ev events.TransferEvent) error
}

// NotificationWorker drains transfer events, writing an audit entry and
// notifying both parties for each. Events whose audit write fails are
// requeued until maxAttempts is reached.
type NotificationWorker struct {
	source      EventSource
	requeue     Requeuer
	audit       AuditWriter
	notifier    Notifier
	interval    time.Duration
	batchSize   int
	maxAttempts int
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func NewNotificationWorker(source EventSource, requeue Requeuer, audit AuditWriter, notifier Notifier) *NotificationWorker {
	return &NotificationWorker{
		source:      source,
		requeue:     requeue,
		audit:       audit,
		notifier:    notifier,
		interval:    2 * time.Second,
		batchSize:   50,
		maxAttempts: 5,
		stopCh:      make(chan struct{}),
	}
}

// WithInterval updates the poll interval.
func (w *NotificationWorker) WithInterval(interval time.Duration) *NotificationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize caps how many events one run pops.
func (w *NotificationWorker) WithBatchSize(size int) *NotificationWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

func (w *NotificationWorker) WithMaxAttempts(n int) *NotificationWorker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

// Start blocks and drains the queue at the configured interval.
func (w *NotificationWorker) Start(ctx context.Context) {
	zap.L().Info("notification worker starting",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("notification worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("notification worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *NotificationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *NotificationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *NotificationWorker) runOnce(ctx context.Context) {
	if _, err := w.ProcessOnce(ctx); err != nil {
		observability.IncrementWorkerRun(workerName, "failed")
		zap.L().Error("notification run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun(workerName, "success")
}

// ProcessOnce handles a single batch and returns how many events were fully
// processed. Useful for testing or manual triggering.
func (w *NotificationWorker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.source.Pop(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("pop events: %w", err)
	}

	done := 0
	for _, ev := range batch {
		if err := w.writeAudit(ctx, ev); err != nil {
			w.retry(ctx, ev, err)
			continue
		}
		if err := w.notifier.Notify(ctx, ev); err != nil {
			// The audit trail is already written; a lost notification is
			// not worth replaying the event for.
			observability.IncrementNotification("notify_failed")
			zap.L().Warn("transfer notification failed",
				zap.String("transfer_id", ev.TransferID.String()),
				zap.Error(err),
			)
		} else {
			observability.IncrementNotification("sent")
		}
		done++
	}
	return done, nil
}

func (w *NotificationWorker) writeAudit(ctx context.Context, ev events.TransferEvent) error {
	metadata, err := json.Marshal(map[string]string{
		"sender_account_id":   ev.SenderAccountID.String(),
		"receiver_account_id": ev.ReceiverAccountID.String(),
		"amount":              ev.Amount,
		"currency":            ev.Currency,
		"strategy":            ev.Strategy,
		"status":              ev.Status,
	})
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	return w.audit.Write(ctx, models.AuditEntry{
		EntityType: "transfer",
		EntityID:   ev.TransferID,
		Action:     "transfer.completed",
		Metadata:   metadata,
		CreatedAt:  ev.OccurredAt,
	})
}

func (w *NotificationWorker) retry(ctx context.Context, ev events.TransferEvent, cause error) {
	if ev.Attempts+1 >= w.maxAttempts {
		observability.IncrementNotification("dropped")
		zap.L().Error("dropping transfer event after repeated audit failures",
			zap.String("transfer_id", ev.TransferID.String()),
			zap.Int("attempts", ev.Attempts+1),
			zap.Error(cause),
		)
		return
	}
	if err := w.requeue.Requeue(ctx, ev); err != nil {
		observability.IncrementNotification("requeue_failed")
		zap.L().Error("failed to requeue transfer event",
			zap.String("transfer_id", ev.TransferID.String()),
			zap.Error(err),
		)
		return
	}
	observability.IncrementNotification("requeued")
	zap.L().Warn("audit write failed, event requeued",
		zap.String("transfer_id", ev.TransferID.String()),
		zap.Error(cause),
	)
}

// LogNotifier writes the notification that would be emailed to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev events.TransferEvent) error {
	n.logger.Info("sending transfer email",
		zap.String("transfer_id", ev.TransferID.String()),
		zap.String("to_account_id", ev.SenderAccountID.String()),
		zap.String("message", fmt.Sprintf("You sent %s %s", ev.Amount, ev.Currency)),
	)
	n.logger.Info("sending transfer email",
		zap.String("transfer_id", ev.TransferID.String()),
		zap.String("to_account_id", ev.ReceiverAccountID.String()),
		zap.String("message", fmt.Sprintf("You received %s %s", ev.Amount, ev.Currency)),
	)
	return nil
}
