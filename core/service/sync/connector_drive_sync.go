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

// rootDriveID is the provider's alias for a principal's personal drive.
const rootDriveID = "root"

// =============================================================================
// Drive Sync Controller
// =============================================================================

// driveWorker tracks one drive's walk for a principal.
type driveWorker struct {
	email   string
	driveID string
	info    *out.ProviderDriveInfo
}

func (w *driveWorker) key() string {
	return w.email + "/" + w.driveID
}

// DriveSyncService walks one principal's drives file by file and mirrors
// them through the drive transformer, 50 files per transaction. Drives keep
// their own sync state alongside the user-level one: a drive that finished
// earlier is skipped when the walk resumes. Several principals may walk
// concurrently; the worker map registers every in-flight drive.
type DriveSyncService struct {
	states      out.SyncStateStore
	transformer *transform.DriveTransformer
	producer    out.RecordEventProducer
	progress    out.SyncProgressReporter // optional, nil disables reporting
	log         *logger.Logger

	syncLock      sync.Mutex // held for one batch's transform + emit
	workerLock    sync.Mutex // guards the per-drive worker map
	driveWorkers  map[string]*driveWorker
	stopRequested atomic.Bool
}

// NewDriveSyncService creates a new drive sync controller.
func NewDriveSyncService(states out.SyncStateStore, transformer *transform.DriveTransformer, producer out.RecordEventProducer, progress out.SyncProgressReporter, log *logger.Logger) *DriveSyncService {
	if log == nil {
		log = logger.Default()
	}
	return &DriveSyncService{
		states:       states,
		transformer:  transformer,
		producer:     producer,
		progress:     progress,
		log:          log,
		driveWorkers: make(map[string]*driveWorker),
	}
}

// RequestStop raises the cooperative stop flag. Running batches finish;
// the next boundary (batch or drive) observes the flag and parks the walk
// as PAUSED.
func (s *DriveSyncService) RequestStop() {
	s.stopRequested.Store(true)
}

// ResetStop clears the stop flag so a later start or resume can run.
func (s *DriveSyncService) ResetStop() {
	s.stopRequested.Store(false)
}

// WaitIdle blocks until no batch is mid-flight.
func (s *DriveSyncService) WaitIdle() {
	s.syncLock.Lock()
	defer s.syncLock.Unlock()
}

// SyncUser runs one principal's full drive walk: the personal drive first,
// then every shared drive. A drive that fails keeps the walk going; only a
// failed drive enumeration marks the principal FAILED.
func (s *DriveSyncService) SyncUser(ctx context.Context, orgID, email string, surface out.UserSurface) error {
	if err := s.states.UpdateSyncState(ctx, email, domain.ServiceDrive, domain.SyncRunning); err != nil {
		return fmt.Errorf("mark %s RUNNING: %w", email, err)
	}

	drive := surface.Drive()
	workers, err := s.initializeWorkers(ctx, email, drive)
	if err != nil {
		s.log.Error("[DriveSyncService.SyncUser] enumerate drives for %s: %v", email, err)
		if uerr := s.states.UpdateSyncState(ctx, email, domain.ServiceDrive, domain.SyncFailed); uerr != nil {
			s.log.Warn("[DriveSyncService.SyncUser] persist FAILED for %s: %v", email, uerr)
		}
		return fmt.Errorf("enumerate drives: %w", err)
	}
	defer s.releaseWorkers(workers)

	for _, worker := range workers {
		driveID := worker.driveID
		if s.shouldStop(ctx, email, driveID) {
			s.log.Info("[DriveSyncService.SyncUser] sync interrupted for %s at drive %s", email, driveID)
			return nil
		}

		state, err := s.states.GetDriveSyncState(ctx, email, driveID)
		if err != nil {
			s.log.Warn("[DriveSyncService.SyncUser] drive state for %s/%s: %v", email, driveID, err)
		}
		if state == domain.SyncCompleted {
			s.log.Info("[DriveSyncService.SyncUser] drive %s already completed for %s, skipping", driveID, email)
			continue
		}

		interrupted, err := s.syncDrive(ctx, orgID, email, drive, worker)
		if err != nil {
			s.log.Error("[DriveSyncService.SyncUser] drive %s failed for %s: %v", driveID, email, err)
			if uerr := s.states.UpdateDriveSyncState(ctx, email, driveID, domain.SyncFailed); uerr != nil {
				s.log.Warn("[DriveSyncService.SyncUser] persist drive FAILED for %s/%s: %v", email, driveID, uerr)
			}
			continue
		}
		if interrupted {
			s.log.Info("[DriveSyncService.SyncUser] sync interrupted for %s inside drive %s", email, driveID)
			return nil
		}
	}

	if err := s.states.UpdateSyncState(ctx, email, domain.ServiceDrive, domain.SyncCompleted); err != nil {
		return fmt.Errorf("mark %s COMPLETED: %w", email, err)
	}
	s.log.Info("[DriveSyncService.SyncUser] completed drive sync for %s: %d drives", email, len(workers))
	return nil
}

// initializeWorkers enumerates one principal's drives: the personal drive
// first, then every shared drive. The workers register in the shared map
// for the duration of the walk.
func (s *DriveSyncService) initializeWorkers(ctx context.Context, email string, drive out.DriveSurface) ([]*driveWorker, error) {
	rootInfo, err := drive.GetDriveInfo(ctx, rootDriveID)
	if err != nil {
		return nil, fmt.Errorf("personal drive info: %w", err)
	}
	workers := []*driveWorker{{email: email, driveID: rootInfo.ID, info: rootInfo}}
	seen := map[string]bool{rootInfo.ID: true}

	shared, err := drive.ListSharedDrives(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shared drives: %w", err)
	}
	for _, info := range shared {
		if info == nil || info.ID == "" || seen[info.ID] {
			continue
		}
		seen[info.ID] = true
		workers = append(workers, &driveWorker{email: email, driveID: info.ID, info: info})
	}

	s.workerLock.Lock()
	for _, w := range workers {
		s.driveWorkers[w.key()] = w
	}
	s.workerLock.Unlock()

	s.log.Info("[DriveSyncService.initializeWorkers] %d drive workers ready for %s", len(workers), email)
	return workers, nil
}

func (s *DriveSyncService) releaseWorkers(workers []*driveWorker) {
	s.workerLock.Lock()
	for _, w := range workers {
		delete(s.driveWorkers, w.key())
	}
	s.workerLock.Unlock()
}

// ActiveDrives lists the email/driveID pairs currently walking.
func (s *DriveSyncService) ActiveDrives() []string {
	s.workerLock.Lock()
	defer s.workerLock.Unlock()

	keys := make([]string, 0, len(s.driveWorkers))
	for key := range s.driveWorkers {
		keys = append(keys, key)
	}
	return keys
}

// syncDrive mirrors one drive: the drive vertex itself, then its files in
// fixed-size batches with a stop check before each one. A batch that fails
// to transform is logged and skipped; the drive stays RUNNING.
func (s *DriveSyncService) syncDrive(ctx context.Context, orgID, email string, drive out.DriveSurface, worker *driveWorker) (bool, error) {
	if worker == nil || worker.info == nil {
		return false, fmt.Errorf("no worker for drive")
	}
	driveID := worker.driveID

	if _, err := s.transformer.TransformDrive(ctx, orgID, email, worker.info); err != nil {
		return false, fmt.Errorf("mirror drive vertex: %w", err)
	}
	if err := s.states.UpdateDriveSyncState(ctx, email, driveID, domain.SyncRunning); err != nil {
		s.log.Warn("[DriveSyncService.syncDrive] persist drive RUNNING for %s/%s: %v", email, driveID, err)
	}

	fileIDs, err := s.listAllFileIDs(ctx, drive, driveID)
	if err != nil {
		return false, fmt.Errorf("list files: %w", err)
	}
	if len(fileIDs) == 0 {
		if err := s.states.UpdateDriveSyncState(ctx, email, driveID, domain.SyncCompleted); err != nil {
			s.log.Warn("[DriveSyncService.syncDrive] persist drive COMPLETED for %s/%s: %v", email, driveID, err)
		}
		return false, nil
	}

	s.setProgress(ctx, email, map[string]any{
		"driveId":    driveID,
		"totalFiles": len(fileIDs),
	})

	for i := 0; i < len(fileIDs); i += domain.DriveBatchSize {
		if s.shouldStop(ctx, email, driveID) {
			return true, nil
		}

		end := i + domain.DriveBatchSize
		if end > len(fileIDs) {
			end = len(fileIDs)
		}

		files, err := drive.BatchFetchMetadataAndPermissions(ctx, fileIDs[i:end])
		if err != nil {
			s.log.Warn("[DriveSyncService.syncDrive] fetch metadata at file %d for drive %s: %v", i, driveID, err)
			continue
		}

		s.syncLock.Lock()
		result, err := s.transformer.TransformFileBatch(ctx, orgID, files)
		if err != nil {
			s.syncLock.Unlock()
			s.log.Warn("[DriveSyncService.syncDrive] batch at file %d failed for drive %s: %v", i, driveID, err)
			continue
		}
		s.emitEvents(ctx, result.Events)
		s.syncLock.Unlock()

		s.incrProgress(ctx, email, "syncedFiles", int64(end-i))
	}

	if err := s.states.UpdateDriveSyncState(ctx, email, driveID, domain.SyncCompleted); err != nil {
		s.log.Warn("[DriveSyncService.syncDrive] persist drive COMPLETED for %s/%s: %v", email, driveID, err)
	}
	s.log.Info("[DriveSyncService.syncDrive] completed drive %s for %s: %d files", driveID, email, len(fileIDs))
	return false, nil
}

// shouldStop reports whether a stop or pause request is pending, parking
// both the drive and the user-level state as PAUSED when it is. A state
// already persisted as STOPPED is left alone.
func (s *DriveSyncService) shouldStop(ctx context.Context, email, driveID string) bool {
	if !s.stopRequested.Load() {
		return false
	}
	if entry, err := s.states.GetSyncState(ctx, email, domain.ServiceDrive); err == nil && entry != nil && entry.State == domain.SyncStopped {
		return true
	}
	if driveID != "" {
		if err := s.states.UpdateDriveSyncState(ctx, email, driveID, domain.SyncPaused); err != nil {
			s.log.Warn("[DriveSyncService.shouldStop] persist drive PAUSED for %s/%s: %v", email, driveID, err)
		}
	}
	if err := s.states.UpdateSyncState(ctx, email, domain.ServiceDrive, domain.SyncPaused); err != nil {
		s.log.Warn("[DriveSyncService.shouldStop] persist PAUSED for %s: %v", email, err)
	}
	return true
}

// listAllFileIDs drains the drive's file listing across pages.
func (s *DriveSyncService) listAllFileIDs(ctx context.Context, drive out.DriveSurface, driveID string) ([]string, error) {
	var (
		fileIDs   []string
		pageToken string
	)
	for {
		page, err := drive.ListFilesInFolder(ctx, driveID, pageToken)
		if err != nil {
			return nil, err
		}
		fileIDs = append(fileIDs, page.FileIDs...)
		if page.NextPageToken == "" {
			return fileIDs, nil
		}
		pageToken = page.NextPageToken
	}
}

// emitEvents publishes a committed batch's envelopes. Producer failures are
// logged and skipped; the commit stands either way.
func (s *DriveSyncService) emitEvents(ctx context.Context, events []*domain.RecordEvent) {
	for _, event := range events {
		if err := s.producer.EmitRecordEvent(ctx, event); err != nil {
			s.log.Error("[DriveSyncService.emitEvents] emit record %s: %v", event.RecordID, err)
		}
	}
}

func (s *DriveSyncService) setProgress(ctx context.Context, email string, fields map[string]any) {
	if s.progress == nil {
		return
	}
	if err := s.progress.SetSyncProgress(ctx, email, domain.ServiceDrive, fields); err != nil {
		s.log.Warn("[DriveSyncService.setProgress] report for %s: %v", email, err)
	}
}

func (s *DriveSyncService) incrProgress(ctx context.Context, email, field string, by int64) {
	if s.progress == nil {
		return
	}
	if err := s.progress.IncrSyncCounter(ctx, email, domain.ServiceDrive, field, by); err != nil {
		s.log.Warn("[DriveSyncService.incrProgress] report for %s: %v", email, err)
	}
}
