package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Resinat/Prism/internal/service"
)

var nodeSortFields = []string{"position", "name", "type", "server", "created_at"}

func nodeSortKey(field string) func(service.NodeView) string {
	switch field {
	case "name":
		return func(n service.NodeView) string { return strings.ToLower(n.Name) }
	case "type":
		return func(n service.NodeView) string { return string(n.Type) }
	case "server":
		return func(n service.NodeView) string { return fmt.Sprintf("%s:%05d", n.Server, n.Port) }
	case "created_at":
		return func(n service.NodeView) string { return n.CreatedAt.UTC().Format(time.RFC3339Nano) }
	default:
		return func(n service.NodeView) string { return fmt.Sprintf("%020d", n.Position) }
	}
}

// HandleListNodes returns a handler for GET /api/v1/nodes.
func HandleListNodes(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceID, ok := parseOptionalUUIDQuery(c, "sourceId", "sourceId")
		if !ok {
			return
		}
		enabled, ok := parseBoolQueryOrWriteInvalid(c, "enabled")
		if !ok {
			return
		}
		sorting, ok := parseSortingOrWriteInvalid(c, nodeSortFields, "position", "asc")
		if !ok {
			return
		}
		pg, ok := parsePaginationOrWriteInvalid(c)
		if !ok {
			return
		}

		nodes, err := svc.ListNodes(service.NodeQuery{
			SourceID:    sourceID,
			Types:       QueryList(c, "type"),
			Tags:        QueryList(c, "tag"),
			EnabledOnly: enabled != nil && *enabled,
			Search:      c.Query("q"),
		})
		if err != nil {
			writeServiceError(c, err)
			return
		}
		if enabled != nil && !*enabled {
			disabled := nodes[:0]
			for _, n := range nodes {
				if !n.Enabled {
					disabled = append(disabled, n)
				}
			}
			nodes = disabled
		}
		SortSlice(nodes, sorting, nodeSortKey(sorting.SortBy))
		WritePage(c, http.StatusOK, nodes, pg)
	}
}

// HandleGetNode returns a handler for GET /api/v1/nodes/:id.
func HandleGetNode(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.GetNode(c.Param("id"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

// HandlePatchNode returns a handler for PATCH /api/v1/nodes/:id.
func HandlePatchNode(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readRawBodyOrWriteInvalid(c)
		if !ok {
			return
		}
		n, err := svc.PatchNode(c.Param("id"), json.RawMessage(body))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

// HandleDeleteNode returns a handler for DELETE /api/v1/nodes/:id.
func HandleDeleteNode(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteNode(c.Param("id")); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// HandleImportNodes returns a handler for POST /api/v1/nodes/import. The
// body is raw subscription content: a link list, its base64 form, a JSON
// array of links or a Clash YAML document.
func HandleImportNodes(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceID, ok := parseOptionalUUIDQuery(c, "sourceId", "sourceId")
		if !ok {
			return
		}
		body, ok := readRawBodyOrWriteInvalid(c)
		if !ok {
			return
		}
		result, err := svc.ImportLinks(c.Request.Context(), body, sourceID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
