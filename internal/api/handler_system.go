package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Resinat/Prism/internal/service"
)

// HandleHealthz returns a handler for GET /healthz.
func HandleHealthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleSystemInfo returns a handler for GET /api/v1/system/info.
func HandleSystemInfo(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := svc.GetSystemInfo()
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// HandleGeoIPStatus returns a handler for GET /api/v1/geoip/status.
func HandleGeoIPStatus(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.GetGeoIPStatus())
	}
}

// HandleGeoIPLookup returns a handler for GET /api/v1/geoip/lookup.
func HandleGeoIPLookup(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Query("ip")
		if ip == "" {
			writeInvalidArgument(c, "ip query parameter is required")
			return
		}
		loc, err := svc.LookupIP(ip)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ip":       ip,
			"location": loc,
		})
	}
}

// HandleGeoIPUpdate returns a handler for POST /api/v1/geoip/actions/update-now.
func HandleGeoIPUpdate(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.UpdateGeoIPNow(); err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
