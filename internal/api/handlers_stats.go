package api

import "github.com/gin-gonic/gin"

// statsHandler handles GET /api/v1/stats (spec §6 get_stats()).
func (s *Server) statsHandler(c *gin.Context) {
	stats, err := s.backend.GetStats(c.Request.Context())
	if err != nil {
		InternalError(c, "failed to get stats: "+err.Error())
		return
	}
	SuccessResponse(c, "stats retrieved", stats)
}

// forceSyncHandler handles POST /api/v1/sync/force (spec §6 force_sync()).
// Only meaningful for a hybrid backend; reports unavailable otherwise.
func (s *Server) forceSyncHandler(c *gin.Context) {
	if s.hybrid == nil {
		BadRequestError(c, "force_sync is only available for a hybrid backend")
		return
	}
	synced, err := s.hybrid.ForceSync(c.Request.Context())
	if err != nil {
		InternalError(c, "force sync failed: "+err.Error())
		return
	}
	SuccessResponse(c, "sync forced", gin.H{"synced": synced})
}

// syncStatusHandler handles GET /api/v1/sync/status (spec §6
// get_sync_status(), hybrid only).
func (s *Server) syncStatusHandler(c *gin.Context) {
	if s.hybrid == nil {
		BadRequestError(c, "sync status is only available for a hybrid backend")
		return
	}
	SuccessResponse(c, "sync status retrieved", s.hybrid.GetSyncStatus())
}

// initialSyncStatusHandler handles GET /api/v1/sync/initial-status (spec
// §6 get_initial_sync_status()).
func (s *Server) initialSyncStatusHandler(c *gin.Context) {
	if s.hybrid == nil {
		BadRequestError(c, "initial sync status is only available for a hybrid backend")
		return
	}
	SuccessResponse(c, "initial sync status retrieved", s.hybrid.GetInitialSyncStatus())
}
