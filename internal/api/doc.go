// Package api provides the thin HTTP shell the core exposes to external
// collaborators.
//
// The REST/dashboard surface itself is out of this module's scope; this
// package exposes only the narrow consumer contract named in the spec: a
// read-only window onto internal/health's rolling integrity history with
// acknowledgement of a reported event by id, plus stats and sync-control
// (force_sync, get_sync_status, get_initial_sync_status) for a hybrid
// backend.
package api
