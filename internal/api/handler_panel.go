package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Resinat/Prism/internal/service"
)

type syncPanelRequest struct {
	Server   string          `json:"server"`
	SourceID string          `json:"sourceId"`
	Inbounds json.RawMessage `json:"inbounds"`
}

// HandleSyncPanel returns a handler for POST /api/v1/panels/sync.
//
// inbounds is either the bare inbound array or the panel's
// {"success":..,"obj":[..]} list response, passed through as received.
func HandleSyncPanel(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncPanelRequest
		if err := DecodeBody(c, &req); err != nil {
			writeDecodeBodyError(c, err)
			return
		}
		if req.SourceID != "" && !ValidateUUID(req.SourceID) {
			writeInvalidArgument(c, "sourceId: must be a valid UUID")
			return
		}
		if len(req.Inbounds) == 0 {
			writeInvalidArgument(c, "inbounds is required")
			return
		}
		result, err := svc.SyncPanel(c.Request.Context(), req.Server, req.Inbounds, req.SourceID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
