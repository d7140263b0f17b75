package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Resinat/Prism/internal/service"
)

// HandleSubscription returns a handler for GET /sub/:token.
//
// The token is the profile's access token and is the only credential; the
// route sits outside the admin group. ?format= overrides the profile's
// default format. A matching If-None-Match yields 304 with no body.
func HandleSubscription(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := svc.RenderSubscription(c.Request.Context(), c.Param("token"), c.Query("format"))
		if err != nil {
			writeServiceError(c, err)
			return
		}

		h := c.Writer.Header()
		h.Set("ETag", doc.ETag)
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Node-Count", strconv.Itoa(doc.NodeCount))
		if etagMatches(c.GetHeader("If-None-Match"), doc.ETag) {
			c.Status(http.StatusNotModified)
			return
		}
		if disp := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}); disp != "" {
			h.Set("Content-Disposition", disp)
		}
		c.Data(http.StatusOK, doc.ContentType, doc.Body)
	}
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
