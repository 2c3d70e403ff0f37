package domain

import "errors"

// =============================================================================
// Sync State Machine
// =============================================================================

// SyncState is the lifecycle state of one principal's sync for one service.
type SyncState string

const (
	SyncNotStarted SyncState = "NOT_STARTED"
	SyncRunning    SyncState = "RUNNING"
	SyncPaused     SyncState = "PAUSED"
	SyncCompleted  SyncState = "COMPLETED"
	SyncFailed     SyncState = "FAILED"
	SyncStopped    SyncState = "STOPPED"
)

// Service types distinguishing mail and drive sync state rows.
const (
	ServiceMail  = "mail"
	ServiceDrive = "drive"
)

// ErrSyncRejected is returned when a control transition is not legal from
// the current state, e.g. start while RUNNING or resume while COMPLETED.
var ErrSyncRejected = errors.New("sync transition rejected")

// IsValid reports whether s is one of the closed state set.
func (s SyncState) IsValid() bool {
	switch s {
	case SyncNotStarted, SyncRunning, SyncPaused, SyncCompleted, SyncFailed, SyncStopped:
		return true
	}
	return false
}

// CanStart reports whether a fresh start is legal from s. A principal that
// is RUNNING or PAUSED must not be started again; PAUSED requires resume.
func (s SyncState) CanStart() bool {
	switch s {
	case SyncNotStarted, SyncCompleted, SyncFailed, SyncStopped, "":
		return true
	}
	return false
}

// CanPause reports whether pause is legal from s.
func (s SyncState) CanPause() bool {
	return s == SyncRunning
}

// CanResume reports whether resume is legal from s.
func (s SyncState) CanResume() bool {
	return s == SyncPaused
}

// =============================================================================
// Persisted Sync Documents
// =============================================================================

// SyncStateEntry is one principal's persisted sync progress for a service.
// DriveID is empty for the user-level row and set for per-drive rows.
type SyncStateEntry struct {
	Email       string    `json:"email"`
	ServiceType string    `json:"serviceType"`
	DriveID     string    `json:"driveId"`
	State       SyncState `json:"syncState"`
	LastToken   string    `json:"lastToken,omitempty"`
	UpdatedAt   int64     `json:"updatedAt"`
}

// Channel is a persisted change-notification registration. Mail channels
// carry a history id, drive channels a channel/resource pair plus the
// changes page token. Re-registration replaces the stored channel wholesale.
type Channel struct {
	ChannelID   string `json:"channelId,omitempty"`
	ResourceID  string `json:"resourceId,omitempty"`
	Email       string `json:"principalEmail"`
	ServiceType string `json:"serviceType"`
	PageToken   string `json:"pageToken,omitempty"`
	HistoryID   string `json:"historyId,omitempty"`
	Expiry      int64  `json:"expiry"`
}

// Batch sizes used by the sync controllers.
const (
	MailBatchSize    = 50
	DriveBatchSize   = 50
	GenericPageLimit = 100
)
