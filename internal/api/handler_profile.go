package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Resinat/Prism/internal/service"
)

// HandleListProfiles returns a handler for GET /api/v1/profiles.
func HandleListProfiles(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pg, ok := parsePaginationOrWriteInvalid(c)
		if !ok {
			return
		}
		profiles, err := svc.ListProfiles()
		if err != nil {
			writeServiceError(c, err)
			return
		}
		WritePage(c, http.StatusOK, profiles, pg)
	}
}

// HandleCreateProfile returns a handler for POST /api/v1/profiles.
func HandleCreateProfile(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateProfileRequest
		if err := DecodeBody(c, &req); err != nil {
			writeDecodeBodyError(c, err)
			return
		}
		p, err := svc.CreateProfile(req)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// HandleDeleteProfile returns a handler for DELETE /api/v1/profiles/:id.
func HandleDeleteProfile(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireUUIDPathParam(c, "id", "profile_id")
		if !ok {
			return
		}
		if err := svc.DeleteProfile(id); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
