package api

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/reports", s.handleReports)
	s.router.GET("/stream", s.handleStream)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
}
