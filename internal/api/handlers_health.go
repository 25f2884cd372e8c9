package api

import "github.com/gin-gonic/gin"

// healthHandler handles GET /api/v1/health: a liveness/readiness probe
// reflecting the monitor's most recent integrity check.
func (s *Server) healthHandler(c *gin.Context) {
	healthy := s.monitor.Healthy()
	status := "ok"
	if !healthy {
		status = "degraded"
	}
	SuccessResponse(c, "health status retrieved", gin.H{
		"status":  status,
		"healthy": healthy,
	})
}

// healthHistoryHandler handles GET /api/v1/health/history: the rolling
// in-memory history of integrity/consolidation events.
func (s *Server) healthHistoryHandler(c *gin.Context) {
	SuccessResponse(c, "health history retrieved", s.monitor.History())
}

// healthResolveHandler handles POST /api/v1/health/:id/resolve: acknowledges
// a reported event by id.
func (s *Server) healthResolveHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.monitor.Resolve(id); err != nil {
		NotFoundError(c, err.Error())
		return
	}
	SuccessResponse(c, "event resolved", gin.H{"id": id})
}
