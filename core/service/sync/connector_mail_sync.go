// Package sync drives per-principal synchronization runs: the mail and
// drive controllers that walk provider listings in fixed-size batches, the
// watch bootstrapper that registers change notifications, and the tenant
// orchestrator that owns lifecycle transitions across all of them.
package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/core/service/transform"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// =============================================================================
// Mail Sync Controller
// =============================================================================

// MailSyncService walks one principal's mailbox thread by thread and mirrors
// it through the mail transformer, 50 threads per transaction. The stop flag
// is checked before every batch: an in-flight batch always runs to its
// commit, later batches do not start.
type MailSyncService struct {
	states      out.SyncStateStore
	transformer *transform.MailTransformer
	producer    out.RecordEventProducer
	progress    out.SyncProgressReporter // optional, nil disables reporting
	log         *logger.Logger

	syncLock      sync.Mutex // held for one batch's transform + emit
	stopRequested atomic.Bool
}

// NewMailSyncService creates a new mail sync controller.
func NewMailSyncService(states out.SyncStateStore, transformer *transform.MailTransformer, producer out.RecordEventProducer, progress out.SyncProgressReporter, log *logger.Logger) *MailSyncService {
	if log == nil {
		log = logger.Default()
	}
	return &MailSyncService{
		states:      states,
		transformer: transformer,
		producer:    producer,
		progress:    progress,
		log:         log,
	}
}

// RequestStop raises the cooperative stop flag. Running batches finish;
// the next batch boundary observes the flag and parks the run as PAUSED.
func (s *MailSyncService) RequestStop() {
	s.stopRequested.Store(true)
}

// ResetStop clears the stop flag so a later start or resume can run.
func (s *MailSyncService) ResetStop() {
	s.stopRequested.Store(false)
}

// WaitIdle blocks until no batch is mid-flight. Stop drains through here
// before persisting STOPPED so the terminal state lands after the last
// commit.
func (s *MailSyncService) WaitIdle() {
	s.syncLock.Lock()
	defer s.syncLock.Unlock()
}

// SyncUser runs one principal's full mail walk.
//
// The thread listing is taken up front, then mirrored in fixed-size batches
// with a stop check before each one. A batch that fails to fetch or
// transform is logged and skipped; the run stays RUNNING and proceeds with
// the next batch. Only a failed listing marks the principal FAILED.
func (s *MailSyncService) SyncUser(ctx context.Context, orgID, email string, surface out.UserSurface) error {
	if err := s.states.UpdateSyncState(ctx, email, domain.ServiceMail, domain.SyncRunning); err != nil {
		return fmt.Errorf("mark %s RUNNING: %w", email, err)
	}

	mail := surface.Mail()
	threads, err := s.listAllThreads(ctx, mail)
	if err != nil {
		s.log.Error("[MailSyncService.SyncUser] list threads for %s: %v", email, err)
		if uerr := s.states.UpdateSyncState(ctx, email, domain.ServiceMail, domain.SyncFailed); uerr != nil {
			s.log.Warn("[MailSyncService.SyncUser] persist FAILED for %s: %v", email, uerr)
		}
		return fmt.Errorf("list threads: %w", err)
	}
	if len(threads) == 0 {
		s.log.Info("[MailSyncService.SyncUser] no threads found for %s", email)
		return s.states.UpdateSyncState(ctx, email, domain.ServiceMail, domain.SyncCompleted)
	}

	s.setProgress(ctx, email, map[string]any{
		"totalThreads":  len(threads),
		"syncedThreads": 0,
	})

	for i := 0; i < len(threads); i += domain.MailBatchSize {
		if s.shouldStop(ctx, email) {
			s.log.Info("[MailSyncService.SyncUser] sync interrupted for %s at thread %d", email, i)
			return nil
		}

		end := i + domain.MailBatchSize
		if end > len(threads) {
			end = len(threads)
		}

		batches := s.fetchThreadBatches(ctx, mail, threads[i:end])
		if len(batches) == 0 {
			continue
		}

		s.syncLock.Lock()
		result, err := s.transformer.TransformThreadBatch(ctx, orgID, batches)
		if err != nil {
			s.syncLock.Unlock()
			s.log.Warn("[MailSyncService.SyncUser] batch at thread %d failed for %s: %v", i, email, err)
			continue
		}
		s.emitEvents(ctx, result.Events)
		s.syncLock.Unlock()

		s.incrProgress(ctx, email, "syncedThreads", int64(end-i))
	}

	if err := s.states.UpdateSyncState(ctx, email, domain.ServiceMail, domain.SyncCompleted); err != nil {
		return fmt.Errorf("mark %s COMPLETED: %w", email, err)
	}
	s.log.Info("[MailSyncService.SyncUser] completed mail sync for %s: %d threads", email, len(threads))
	return nil
}

// shouldStop reports whether a stop or pause request is pending. When one
// is, the principal parks as PAUSED so a later resume can pick the walk
// back up; a state already persisted as STOPPED is left alone.
func (s *MailSyncService) shouldStop(ctx context.Context, email string) bool {
	if !s.stopRequested.Load() {
		return false
	}
	if entry, err := s.states.GetSyncState(ctx, email, domain.ServiceMail); err == nil && entry != nil && entry.State == domain.SyncStopped {
		return true
	}
	if err := s.states.UpdateSyncState(ctx, email, domain.ServiceMail, domain.SyncPaused); err != nil {
		s.log.Warn("[MailSyncService.shouldStop] persist PAUSED for %s: %v", email, err)
	}
	return true
}

// listAllThreads drains the thread listing across pages.
func (s *MailSyncService) listAllThreads(ctx context.Context, mail out.MailSurface) ([]*out.ProviderThread, error) {
	var (
		threads   []*out.ProviderThread
		pageToken string
	)
	for {
		page, err := mail.ListThreads(ctx, pageToken, domain.GenericPageLimit)
		if err != nil {
			return nil, err
		}
		threads = append(threads, page.Threads...)
		if page.NextPageToken == "" {
			return threads, nil
		}
		pageToken = page.NextPageToken
	}
}

// fetchThreadBatches pulls full messages for each thread of one controller
// batch. A thread whose fetch fails, or that has no messages, is skipped;
// the rest of the batch proceeds.
func (s *MailSyncService) fetchThreadBatches(ctx context.Context, mail out.MailSurface, threads []*out.ProviderThread) []*transform.MailBatch {
	batches := make([]*transform.MailBatch, 0, len(threads))
	for _, thread := range threads {
		if thread == nil || thread.ID == "" {
			continue
		}
		msgs, err := mail.ListMessages(ctx, thread.ID)
		if err != nil {
			s.log.Warn("[MailSyncService.fetchThreadBatches] list messages for thread %s: %v", thread.ID, err)
			continue
		}
		if len(msgs) == 0 {
			s.log.Warn("[MailSyncService.fetchThreadBatches] no messages found for thread %s", thread.ID)
			continue
		}
		batches = append(batches, transform.NewMailBatch(thread, msgs))
	}
	return batches
}

// emitEvents publishes a committed batch's envelopes. Producer failures are
// logged and skipped; the commit stands either way.
func (s *MailSyncService) emitEvents(ctx context.Context, events []*domain.RecordEvent) {
	for _, event := range events {
		if err := s.producer.EmitRecordEvent(ctx, event); err != nil {
			s.log.Error("[MailSyncService.emitEvents] emit record %s: %v", event.RecordID, err)
		}
	}
}

func (s *MailSyncService) setProgress(ctx context.Context, email string, fields map[string]any) {
	if s.progress == nil {
		return
	}
	if err := s.progress.SetSyncProgress(ctx, email, domain.ServiceMail, fields); err != nil {
		s.log.Warn("[MailSyncService.setProgress] report for %s: %v", email, err)
	}
}

func (s *MailSyncService) incrProgress(ctx context.Context, email, field string, by int64) {
	if s.progress == nil {
		return
	}
	if err := s.progress.IncrSyncCounter(ctx, email, domain.ServiceMail, field, by); err != nil {
		s.log.Warn("[MailSyncService.incrProgress] report for %s: %v", email, err)
	}
}
