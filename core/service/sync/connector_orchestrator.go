package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/in"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// defaultSyncWorkers bounds the initial-sync fan-out when no explicit
// worker count is configured.
const defaultSyncWorkers = 4

// =============================================================================
// Tenant Orchestrator
// =============================================================================

// OrchestratorConfig carries the tenant-level knobs.
type OrchestratorConfig struct {
	OrgID      string // tenant identifier vertices and records key by
	OrgName    string // display name for the organization vertex
	MaxWorkers int    // initial-sync fan-out
}

// Orchestrator owns tenant-wide sync: directory mirroring, watch
// registration, the concurrent per-user initial sync run, and the
// start/pause/resume/stop lifecycle around it. Control operations report
// rejection through their boolean result and never panic across the
// boundary.
type Orchestrator struct {
	cfg       OrchestratorConfig
	store     out.GraphStore
	factory   out.ProviderFactory
	mailSync  *MailSyncService
	driveSync *DriveSyncService
	watches   *WatchBootstrapper
	log       *logger.Logger

	transitionLock sync.Mutex // serializes start/pause/resume/stop
	lifecycle      domain.SyncState
	syncActive     atomic.Bool
	stopFlag       atomic.Bool
	cancelRun      context.CancelFunc
	runDone        chan struct{}

	adminMu sync.RWMutex
	admin   out.AdminSurface
	users   []*out.ProviderPrincipal
}

var _ in.SyncControlService = (*Orchestrator)(nil)

// NewOrchestrator creates a new tenant orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, store out.GraphStore, factory out.ProviderFactory, mailSync *MailSyncService, driveSync *DriveSyncService, watches *WatchBootstrapper, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		factory:   factory,
		mailSync:  mailSync,
		driveSync: driveSync,
		watches:   watches,
		log:       log,
		lifecycle: domain.SyncNotStarted,
	}
}

// Initialize connects the tenant and prepares it for syncing: the directory
// (organization, anyone, users, groups, memberships) mirrors into the graph
// in one transaction, principals whose previous run died mid-flight park as
// PAUSED, and change watches register for every principal.
func (o *Orchestrator) Initialize(ctx context.Context, orgID string) error {
	o.log.Info("[Orchestrator.Initialize] initializing tenant %s", orgID)

	admin, err := o.factory.AdminFor(ctx, orgID)
	if err != nil {
		return fmt.Errorf("admin surface: %w", err)
	}

	users, err := admin.ListPrincipals(ctx)
	if err != nil {
		return fmt.Errorf("list principals: %w", err)
	}
	groups, err := admin.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	if err := o.mirrorDirectory(ctx, orgID, admin, users, groups); err != nil {
		return err
	}

	// Crash recovery: RUNNING from a prior process means that run never
	// terminated cleanly.
	for _, user := range users {
		if user == nil || user.Email == "" {
			continue
		}
		o.recoverUserState(ctx, user.Email)
	}

	for _, user := range users {
		if user == nil || user.Email == "" {
			continue
		}
		surface, err := admin.DelegateFor(ctx, user.Email)
		if err != nil {
			o.log.Error("[Orchestrator.Initialize] delegate for %s: %v", user.Email, err)
			continue
		}
		o.watches.BootstrapUser(ctx, user.Email, surface)
	}

	o.adminMu.Lock()
	o.admin = admin
	o.users = users
	o.adminMu.Unlock()

	o.log.Info("[Orchestrator.Initialize] tenant %s ready: %d users, %d groups", orgID, len(users), len(groups))
	return nil
}

// mirrorDirectory upserts the tenant's principal vertices and membership
// edges in a single transaction. Existing vertices keep their keys; only
// unseen principals get fresh ones.
func (o *Orchestrator) mirrorDirectory(ctx context.Context, orgID string, admin out.AdminSurface, users []*out.ProviderPrincipal, groups []*out.ProviderGroup) error {
	now := time.Now().UnixMilli()

	orgName := o.cfg.OrgName
	if orgName == "" {
		if domains, err := admin.ListDomains(ctx); err != nil {
			o.log.Warn("[Orchestrator.mirrorDirectory] list domains: %v", err)
		} else {
			for _, d := range domains {
				if d != nil && d.IsPrimary {
					orgName = d.DomainName
					break
				}
			}
		}
	}
	if orgName == "" {
		orgName = orgID
	}

	orgRows := []any{&domain.Organization{Key: orgID, Name: orgName}}
	anyoneRows := []any{&domain.Anyone{Key: domain.AnyoneKey(orgID), OrgID: orgID}}

	var (
		userRows  []any
		groupRows []any
		edges     []domain.Edge
		userKeys  = make(map[string]string) // lowercased email -> key
		groupKeys = make(map[string]string)
		newUsers  int
		newGroups int
	)

	for _, u := range users {
		if u == nil || u.Email == "" {
			continue
		}
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if _, ok := userKeys[email]; ok {
			continue
		}
		key := o.existingKey(ctx, email, domain.CollUsers)
		if key == "" {
			key = uuid.New().String()
			newUsers++
		}
		userKeys[email] = key

		createdAt := u.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		userRows = append(userRows, &domain.User{
			Key:                key,
			OrgID:              orgID,
			Email:              email,
			FullName:           u.FullName,
			Domain:             u.Domain,
			IsActive:           u.IsActive,
			CreatedAtTimestamp: createdAt,
			ExternalID:         u.ID,
		})
		edges = append(edges, domain.Edge{
			From:       domain.CollUsers + "/" + key,
			To:         domain.CollOrganizations + "/" + orgID,
			EntityType: domain.EntityOrganization,
		})
	}

	for _, g := range groups {
		if g == nil || g.Email == "" {
			continue
		}
		email := strings.ToLower(strings.TrimSpace(g.Email))
		if _, ok := groupKeys[email]; ok {
			continue
		}
		key := o.existingKey(ctx, email, domain.CollGroups)
		if key == "" {
			key = uuid.New().String()
			newGroups++
		}
		groupKeys[email] = key

		createdAt := g.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		groupRows = append(groupRows, &domain.Group{
			Key:                key,
			Email:              email,
			GroupName:          g.Name,
			Description:        g.Description,
			AdminCreated:       g.AdminCreated,
			CreatedAtTimestamp: createdAt,
			ExternalID:         g.ID,
		})
	}

	// Memberships resolve against the users discovered above; members that
	// are not directory users (nested groups, external addresses) are
	// skipped.
	for _, g := range groups {
		if g == nil || g.Email == "" {
			continue
		}
		groupKey := groupKeys[strings.ToLower(strings.TrimSpace(g.Email))]
		if groupKey == "" {
			continue
		}
		members, err := admin.ListGroupMembers(ctx, g.Email)
		if err != nil {
			o.log.Error("[Orchestrator.mirrorDirectory] members of %s: %v", g.Email, err)
			continue
		}
		for _, m := range members {
			if m == nil || m.Email == "" {
				continue
			}
			userKey := userKeys[strings.ToLower(strings.TrimSpace(m.Email))]
			if userKey == "" {
				continue
			}
			role := strings.ToLower(m.Role)
			if role == "" {
				role = "member"
			}
			edges = append(edges, domain.Edge{
				From:       domain.CollUsers + "/" + userKey,
				To:         domain.CollGroups + "/" + groupKey,
				EntityType: domain.EntityGroup,
				Role:       role,
			})
		}
	}

	writeCols := []string{
		domain.CollOrganizations,
		domain.CollAnyone,
		domain.CollUsers,
		domain.CollGroups,
		domain.CollBelongsTo,
	}
	txID, err := o.store.BeginTransaction(ctx, nil, writeCols)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	err = func() error {
		if err := o.store.BatchUpsertVertices(ctx, domain.CollOrganizations, orgRows, txID); err != nil {
			return fmt.Errorf("upsert organization: %w", err)
		}
		if err := o.store.BatchUpsertVertices(ctx, domain.CollAnyone, anyoneRows, txID); err != nil {
			return fmt.Errorf("upsert anyone: %w", err)
		}
		if len(userRows) > 0 {
			if err := o.store.BatchUpsertVertices(ctx, domain.CollUsers, userRows, txID); err != nil {
				return fmt.Errorf("upsert users: %w", err)
			}
		}
		if len(groupRows) > 0 {
			if err := o.store.BatchUpsertVertices(ctx, domain.CollGroups, groupRows, txID); err != nil {
				return fmt.Errorf("upsert groups: %w", err)
			}
		}
		if len(edges) > 0 {
			if err := o.store.BatchCreateEdges(ctx, domain.CollBelongsTo, edges, txID); err != nil {
				return fmt.Errorf("create memberships: %w", err)
			}
		}
		return nil
	}()
	if err != nil {
		if aerr := o.store.AbortTransaction(ctx, txID); aerr != nil {
			o.log.Warn("[Orchestrator.mirrorDirectory] abort failed: %v", aerr)
		}
		return err
	}
	if err := o.store.CommitTransaction(ctx, txID); err != nil {
		if aerr := o.store.AbortTransaction(ctx, txID); aerr != nil {
			o.log.Warn("[Orchestrator.mirrorDirectory] abort failed: %v", aerr)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	o.log.Info("[Orchestrator.mirrorDirectory] mirrored %d users (%d new), %d groups (%d new), %d membership edges",
		len(userRows), newUsers, len(groupRows), newGroups, len(edges))
	return nil
}

// existingKey resolves a principal email to its stored vertex key within
// the given collection, or "" when unseen.
func (o *Orchestrator) existingKey(ctx context.Context, email, collection string) string {
	entityID, err := o.store.EntityIDByEmail(ctx, email)
	if err != nil {
		o.log.Warn("[Orchestrator.existingKey] lookup %s: %v", email, err)
		return ""
	}
	prefix := collection + "/"
	if strings.HasPrefix(entityID, prefix) {
		return strings.TrimPrefix(entityID, prefix)
	}
	return ""
}

// recoverUserState parks a dirty RUNNING state as PAUSED for both services.
func (o *Orchestrator) recoverUserState(ctx context.Context, email string) {
	for _, service := range []string{domain.ServiceMail, domain.ServiceDrive} {
		entry, err := o.store.GetSyncState(ctx, email, service)
		if err != nil {
			o.log.Warn("[Orchestrator.recoverUserState] state for %s/%s: %v", email, service, err)
			continue
		}
		if entry == nil || entry.State != domain.SyncRunning {
			continue
		}
		o.log.Warn("[Orchestrator.recoverUserState] %s %s sync was RUNNING at shutdown, parking as PAUSED", email, service)
		if err := o.store.UpdateSyncState(ctx, email, service, domain.SyncPaused); err != nil {
			o.log.Warn("[Orchestrator.recoverUserState] persist PAUSED for %s/%s: %v", email, service, err)
		}
	}
}

// =============================================================================
// Initial Sync Run
// =============================================================================

// userSyncWorker adapts per-user sync onto the worker pool.
type userSyncWorker struct {
	orchestrator *Orchestrator
	orgID        string
}

// Do implements pool.Worker.
func (w *userSyncWorker) Do(ctx context.Context, user *out.ProviderPrincipal) error {
	return w.orchestrator.syncOneUser(ctx, w.orgID, user)
}

// PerformInitialSync walks every known principal's mail and drive
// concurrently, bounded by the configured fan-out. Individual principals
// failing does not abort the run.
func (o *Orchestrator) PerformInitialSync(ctx context.Context, orgID string) error {
	users := o.snapshotUsers()
	if len(users) == 0 {
		o.log.Warn("[Orchestrator.PerformInitialSync] no principals known for %s; initialize first", orgID)
		return nil
	}

	workers := o.cfg.MaxWorkers
	if workers <= 0 {
		workers = defaultSyncWorkers
	}

	wg := pool.New[*out.ProviderPrincipal](workers, &userSyncWorker{orchestrator: o, orgID: orgID}).
		WithContinueOnError()
	if err := wg.Go(ctx); err != nil {
		return fmt.Errorf("start sync pool: %w", err)
	}
	for _, user := range users {
		wg.Submit(user)
	}
	if err := wg.Close(ctx); err != nil {
		o.log.Warn("[Orchestrator.PerformInitialSync] run finished with errors: %v", err)
	}
	return nil
}

// syncOneUser runs one principal's mail walk then drive walk. Services
// already COMPLETED are skipped; a pending stop leaves the rest of the
// principal's work for the next resume.
func (o *Orchestrator) syncOneUser(ctx context.Context, orgID string, user *out.ProviderPrincipal) error {
	if user == nil || user.Email == "" {
		return nil
	}
	email := user.Email

	if o.stopFlag.Load() {
		o.log.Info("[Orchestrator.syncOneUser] skipping %s, stop requested", email)
		return nil
	}

	admin := o.currentAdmin()
	if admin == nil {
		return fmt.Errorf("tenant not connected")
	}
	surface, err := admin.DelegateFor(ctx, email)
	if err != nil {
		o.log.Error("[Orchestrator.syncOneUser] delegate for %s: %v", email, err)
		return err
	}

	if o.needsRun(ctx, email, domain.ServiceMail) {
		if err := o.mailSync.SyncUser(ctx, orgID, email, surface); err != nil {
			o.log.Error("[Orchestrator.syncOneUser] mail sync for %s: %v", email, err)
		}
	}

	if o.stopFlag.Load() {
		return nil
	}

	if o.needsRun(ctx, email, domain.ServiceDrive) {
		if err := o.driveSync.SyncUser(ctx, orgID, email, surface); err != nil {
			o.log.Error("[Orchestrator.syncOneUser] drive sync for %s: %v", email, err)
		}
	}
	return nil
}

// needsRun reports whether a principal's service still has work. COMPLETED
// short-circuits; every other state re-walks and relies on idempotent
// mirroring to fast-forward what is already there.
func (o *Orchestrator) needsRun(ctx context.Context, email, service string) bool {
	entry, err := o.store.GetSyncState(ctx, email, service)
	if err != nil {
		o.log.Warn("[Orchestrator.needsRun] state for %s/%s: %v", email, service, err)
		return true
	}
	return entry == nil || entry.State != domain.SyncCompleted
}

// =============================================================================
// Control Operations
// =============================================================================

// StartSync launches the tenant-wide initial sync run in the background.
// Rejected while a run is active or the lifecycle sits in RUNNING or PAUSED.
func (o *Orchestrator) StartSync(ctx context.Context, orgID string) bool {
	o.transitionLock.Lock()
	defer o.transitionLock.Unlock()

	if o.syncActive.Load() {
		o.log.Warn("[Orchestrator.StartSync] rejected: a sync run is already active")
		return false
	}
	if o.lifecycle == domain.SyncRunning || o.lifecycle == domain.SyncPaused {
		o.log.Warn("[Orchestrator.StartSync] rejected from state %s", o.lifecycle)
		return false
	}
	if err := o.ensureAdmin(ctx, orgID); err != nil {
		o.log.Error("[Orchestrator.StartSync] connect tenant %s: %v", orgID, err)
		return false
	}

	o.beginRun(orgID)
	o.log.Info("[Orchestrator.StartSync] sync started for tenant %s", orgID)
	return true
}

// PauseSync requests a cooperative pause: in-flight batches commit, later
// batches do not start, principals park as PAUSED at their next boundary.
func (o *Orchestrator) PauseSync(ctx context.Context, orgID string) bool {
	o.transitionLock.Lock()
	defer o.transitionLock.Unlock()

	if o.lifecycle != domain.SyncRunning {
		o.log.Warn("[Orchestrator.PauseSync] rejected from state %s", o.lifecycle)
		return false
	}

	o.stopFlag.Store(true)
	o.mailSync.RequestStop()
	o.driveSync.RequestStop()
	o.lifecycle = domain.SyncPaused
	o.log.Info("[Orchestrator.PauseSync] pause requested for tenant %s; in-flight batches will finish", orgID)
	return true
}

// ResumeSync relaunches the run after a pause. Rejected unless the
// lifecycle is PAUSED and the previous run has fully drained.
func (o *Orchestrator) ResumeSync(ctx context.Context, orgID string) bool {
	o.transitionLock.Lock()
	defer o.transitionLock.Unlock()

	if o.lifecycle != domain.SyncPaused {
		o.log.Warn("[Orchestrator.ResumeSync] rejected from state %s", o.lifecycle)
		return false
	}
	if o.syncActive.Load() {
		o.log.Warn("[Orchestrator.ResumeSync] rejected: previous run still draining")
		return false
	}
	if err := o.ensureAdmin(ctx, orgID); err != nil {
		o.log.Error("[Orchestrator.ResumeSync] connect tenant %s: %v", orgID, err)
		return false
	}

	o.beginRun(orgID)
	o.log.Info("[Orchestrator.ResumeSync] sync resumed for tenant %s", orgID)
	return true
}

// StopSync hard-stops the tenant: the run drains, every principal persists
// STOPPED, provider surfaces disconnect, and the stop flag clears for the
// next start.
func (o *Orchestrator) StopSync(ctx context.Context) bool {
	o.transitionLock.Lock()
	defer o.transitionLock.Unlock()

	o.stopFlag.Store(true)
	o.mailSync.RequestStop()
	o.driveSync.RequestStop()

	if active := o.driveSync.ActiveDrives(); len(active) > 0 {
		o.log.Info("[Orchestrator.StopSync] waiting for %d active drive walks", len(active))
	}
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	if o.runDone != nil {
		<-o.runDone
		o.runDone = nil
	}
	o.mailSync.WaitIdle()
	o.driveSync.WaitIdle()
	o.syncActive.Store(false)

	// Terminal state wins over the PAUSED the controllers parked.
	for _, user := range o.snapshotUsers() {
		if user == nil || user.Email == "" {
			continue
		}
		for _, service := range []string{domain.ServiceMail, domain.ServiceDrive} {
			if err := o.store.UpdateSyncState(ctx, user.Email, service, domain.SyncStopped); err != nil {
				o.log.Warn("[Orchestrator.StopSync] persist STOPPED for %s/%s: %v", user.Email, service, err)
			}
		}
	}

	o.adminMu.Lock()
	o.admin = nil
	o.adminMu.Unlock()

	o.mailSync.ResetStop()
	o.driveSync.ResetStop()
	o.stopFlag.Store(false)
	o.lifecycle = domain.SyncStopped
	o.log.Info("[Orchestrator.StopSync] sync stopped")
	return true
}

// beginRun flips the lifecycle to RUNNING and launches the run goroutine.
// Callers hold transitionLock.
func (o *Orchestrator) beginRun(orgID string) {
	o.stopFlag.Store(false)
	o.mailSync.ResetStop()
	o.driveSync.ResetStop()
	o.lifecycle = domain.SyncRunning
	o.syncActive.Store(true)

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancelRun = cancel
	done := make(chan struct{})
	o.runDone = done

	go func() {
		defer o.finishRun(done)
		defer close(done)
		if err := o.PerformInitialSync(runCtx, orgID); err != nil {
			o.log.Error("[Orchestrator] initial sync run: %v", err)
		}
	}()
}

// finishRun settles the lifecycle once the run goroutine exits. A run that
// was not paused or stopped along the way finished on its own. The done
// channel identifies the run: a stop that already drained and settled this
// run leaves nothing to do, and a newer run must not be touched.
func (o *Orchestrator) finishRun(done chan struct{}) {
	o.transitionLock.Lock()
	defer o.transitionLock.Unlock()

	if o.runDone != done {
		return
	}
	o.runDone = nil
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	if o.lifecycle == domain.SyncRunning {
		o.lifecycle = domain.SyncCompleted
	}
	o.syncActive.Store(false)
	o.log.Info("[Orchestrator] sync run finished in state %s", o.lifecycle)
}

// Lifecycle reports the tenant's current control state.
func (o *Orchestrator) Lifecycle() domain.SyncState {
	o.transitionLock.Lock()
	defer o.transitionLock.Unlock()
	return o.lifecycle
}

// ensureAdmin connects the tenant's admin surface when none is held, e.g.
// after a stop disconnected it. The principal snapshot refreshes with it.
func (o *Orchestrator) ensureAdmin(ctx context.Context, orgID string) error {
	o.adminMu.Lock()
	defer o.adminMu.Unlock()

	if o.admin != nil {
		return nil
	}
	admin, err := o.factory.AdminFor(ctx, orgID)
	if err != nil {
		return err
	}
	users, err := admin.ListPrincipals(ctx)
	if err != nil {
		return err
	}
	o.admin = admin
	if len(users) > 0 {
		o.users = users
	}
	return nil
}

func (o *Orchestrator) currentAdmin() out.AdminSurface {
	o.adminMu.RLock()
	defer o.adminMu.RUnlock()
	return o.admin
}

func (o *Orchestrator) snapshotUsers() []*out.ProviderPrincipal {
	o.adminMu.RLock()
	defer o.adminMu.RUnlock()
	return append([]*out.ProviderPrincipal(nil), o.users...)
}

// =============================================================================
// Watch Renewal
// =============================================================================

// RenewExpiringWatches re-registers every channel expiring inside the
// window. Returns how many channels were renewed.
func (o *Orchestrator) RenewExpiringWatches(ctx context.Context, window time.Duration) (int, error) {
	deadline := time.Now().Add(window).UnixMilli()
	channels, err := o.store.ListExpiringChannels(ctx, deadline)
	if err != nil {
		return 0, fmt.Errorf("list expiring channels: %w", err)
	}
	if len(channels) == 0 {
		return 0, nil
	}

	admin := o.currentAdmin()
	if admin == nil {
		return 0, fmt.Errorf("tenant not connected")
	}

	renewed := 0
	for _, ch := range channels {
		if ch == nil || ch.Email == "" {
			continue
		}
		surface, err := admin.DelegateFor(ctx, ch.Email)
		if err != nil {
			o.log.Error("[Orchestrator.RenewExpiringWatches] delegate for %s: %v", ch.Email, err)
			continue
		}

		switch ch.ServiceType {
		case domain.ServiceMail:
			err = o.watches.BootstrapMailWatch(ctx, ch.Email, surface.Mail())
		case domain.ServiceDrive:
			err = o.watches.BootstrapDriveWatch(ctx, ch.Email, surface.Drive())
		default:
			o.log.Warn("[Orchestrator.RenewExpiringWatches] unknown service %q on channel for %s", ch.ServiceType, ch.Email)
			continue
		}
		if err != nil {
			o.log.Error("[Orchestrator.RenewExpiringWatches] renew %s watch for %s: %v", ch.ServiceType, ch.Email, err)
			continue
		}
		renewed++
	}

	o.log.Info("[Orchestrator.RenewExpiringWatches] renewed %d of %d expiring channels", renewed, len(channels))
	return renewed, nil
}
