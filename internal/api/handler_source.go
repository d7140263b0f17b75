package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Resinat/Prism/internal/service"
	"github.com/Resinat/Prism/internal/store"
)

var sourceSortFields = []string{"name", "kind", "created_at", "last_fetched_at"}

func sourceSortKey(field string) func(store.Source) string {
	switch field {
	case "kind":
		return func(s store.Source) string { return string(s.Kind) }
	case "created_at":
		return func(s store.Source) string { return s.CreatedAt.UTC().Format("20060102150405.000000000") }
	case "last_fetched_at":
		return func(s store.Source) string { return s.LastFetchedAt.UTC().Format("20060102150405.000000000") }
	default:
		return func(s store.Source) string { return strings.ToLower(s.Name) }
	}
}

// HandleListSources returns a handler for GET /api/v1/sources.
func HandleListSources(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		enabled, ok := parseBoolQueryOrWriteInvalid(c, "enabled")
		if !ok {
			return
		}
		kind := c.Query("kind")
		sorting, ok := parseSortingOrWriteInvalid(c, sourceSortFields, "created_at", "asc")
		if !ok {
			return
		}
		pg, ok := parsePaginationOrWriteInvalid(c)
		if !ok {
			return
		}

		sources, err := svc.ListSources()
		if err != nil {
			writeServiceError(c, err)
			return
		}
		filtered := sources[:0]
		for _, s := range sources {
			if enabled != nil && s.Enabled != *enabled {
				continue
			}
			if kind != "" && string(s.Kind) != kind {
				continue
			}
			filtered = append(filtered, s)
		}
		SortSlice(filtered, sorting, sourceSortKey(sorting.SortBy))
		WritePage(c, http.StatusOK, filtered, pg)
	}
}

// HandleCreateSource returns a handler for POST /api/v1/sources.
func HandleCreateSource(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateSourceRequest
		if err := DecodeBody(c, &req); err != nil {
			writeDecodeBodyError(c, err)
			return
		}
		src, err := svc.CreateSource(req)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, src)
	}
}

// HandleGetSource returns a handler for GET /api/v1/sources/:id.
func HandleGetSource(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireUUIDPathParam(c, "id", "source_id")
		if !ok {
			return
		}
		src, err := svc.GetSource(id)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, src)
	}
}

// HandleUpdateSource returns a handler for PATCH /api/v1/sources/:id.
func HandleUpdateSource(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireUUIDPathParam(c, "id", "source_id")
		if !ok {
			return
		}
		body, ok := readRawBodyOrWriteInvalid(c)
		if !ok {
			return
		}
		src, err := svc.UpdateSource(id, json.RawMessage(body))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, src)
	}
}

// HandleDeleteSource returns a handler for DELETE /api/v1/sources/:id.
// The source's nodes are deleted with it.
func HandleDeleteSource(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireUUIDPathParam(c, "id", "source_id")
		if !ok {
			return
		}
		if err := svc.DeleteSource(id); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// HandleRefreshSource returns a handler for POST /api/v1/sources/:id/refresh.
func HandleRefreshSource(svc *service.NodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireUUIDPathParam(c, "id", "source_id")
		if !ok {
			return
		}
		result, err := svc.RefreshSource(c.Request.Context(), id)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
