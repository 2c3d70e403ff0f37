// Package in defines the inbound ports exposed to the HTTP surface.
package in

import "context"

// SyncControlService drives tenant-wide sync. Control operations return
// booleans and never raise across the boundary: false means the transition
// was rejected (e.g. start while a sync run is already in flight).
type SyncControlService interface {
	StartSync(ctx context.Context, orgID string) bool
	PauseSync(ctx context.Context, orgID string) bool
	ResumeSync(ctx context.Context, orgID string) bool
	StopSync(ctx context.Context) bool
}
