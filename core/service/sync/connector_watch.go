package sync

import (
	"context"
	"fmt"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// =============================================================================
// Watch Bootstrapper
// =============================================================================

// WatchBootstrapper registers provider change notifications for a principal
// and primes their cursors. Registration persists through the sync state
// store; the getChanges call right after registration binds the cursor to
// "everything after now" and its result is discarded on purpose.
type WatchBootstrapper struct {
	states out.SyncStateStore
	topic  string // pub/sub topic mail watches publish to
	log    *logger.Logger
}

// NewWatchBootstrapper creates a new watch bootstrapper.
func NewWatchBootstrapper(states out.SyncStateStore, topic string, log *logger.Logger) *WatchBootstrapper {
	if log == nil {
		log = logger.Default()
	}
	return &WatchBootstrapper{
		states: states,
		topic:  topic,
		log:    log,
	}
}

// BootstrapMailWatch registers a mailbox watch. The history id doubles as
// the mail cursor and rides on the channel registration itself.
func (b *WatchBootstrapper) BootstrapMailWatch(ctx context.Context, email string, mail out.MailSurface) error {
	watch, err := mail.CreateWatch(ctx, b.topic)
	if err != nil {
		return fmt.Errorf("create mail watch: %w", err)
	}

	ch := &domain.Channel{
		Email:       email,
		ServiceType: domain.ServiceMail,
		HistoryID:   watch.HistoryID,
		Expiry:      watch.Expiry,
	}
	if err := b.states.StoreChannel(ctx, ch); err != nil {
		return fmt.Errorf("store mail channel: %w", err)
	}

	changes, err := mail.GetChanges(ctx, watch.HistoryID)
	if err != nil {
		b.log.Warn("[WatchBootstrapper.BootstrapMailWatch] prime cursor for %s: %v", email, err)
		return nil
	}
	b.log.Info("[WatchBootstrapper.BootstrapMailWatch] %s watching from history %s, %d pending changes discarded",
		email, watch.HistoryID, len(changes.MessageIDs))
	return nil
}

// BootstrapDriveWatch registers a drive changes watch. The registration and
// the page-token cursor persist separately: the cursor moves on its own
// while the channel identity stays until renewal.
func (b *WatchBootstrapper) BootstrapDriveWatch(ctx context.Context, email string, drive out.DriveSurface) error {
	watch, err := drive.CreateChangesWatch(ctx)
	if err != nil {
		return fmt.Errorf("create drive watch: %w", err)
	}

	ch := &domain.Channel{
		ChannelID:   watch.ChannelID,
		ResourceID:  watch.ResourceID,
		Email:       email,
		ServiceType: domain.ServiceDrive,
		Expiry:      watch.Expiry,
	}
	if err := b.states.StoreChannel(ctx, ch); err != nil {
		return fmt.Errorf("store drive channel: %w", err)
	}
	if err := b.states.StorePageToken(ctx, watch.ChannelID, watch.ResourceID, email, watch.PageToken); err != nil {
		return fmt.Errorf("store page token: %w", err)
	}

	changes, err := drive.GetChanges(ctx, watch.PageToken)
	if err != nil {
		b.log.Warn("[WatchBootstrapper.BootstrapDriveWatch] prime cursor for %s: %v", email, err)
		return nil
	}
	b.log.Info("[WatchBootstrapper.BootstrapDriveWatch] %s watching on channel %s, %d pending changes discarded",
		email, watch.ChannelID, len(changes.FileIDs))
	return nil
}

// BootstrapUser registers both services' watches for one principal. A
// failure on one service is logged and does not block the other.
func (b *WatchBootstrapper) BootstrapUser(ctx context.Context, email string, surface out.UserSurface) {
	if err := b.BootstrapMailWatch(ctx, email, surface.Mail()); err != nil {
		b.log.Error("[WatchBootstrapper.BootstrapUser] mail watch for %s: %v", email, err)
	}
	if err := b.BootstrapDriveWatch(ctx, email, surface.Drive()); err != nil {
		b.log.Error("[WatchBootstrapper.BootstrapUser] drive watch for %s: %v", email, err)
	}
}
