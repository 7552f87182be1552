package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hmoscout/hmoscout/internal/ingestion"
)

type triggerRunResponse struct {
	Results []ingestion.RunResult `json:"results"`
}

// TriggerIngestionRun starts a synchronous ingestion run. The manager's run
// lock turns a concurrent trigger into a 409 rather than a second run.
func (s *Server) TriggerIngestionRun(c *gin.Context) {
	source := strings.TrimSpace(c.Query("source"))

	results, err := s.manager.Run(c.Request.Context(), source)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, triggerRunResponse{Results: results})
}
