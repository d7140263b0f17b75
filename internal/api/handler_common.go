package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func parsePaginationOrWriteInvalid(c *gin.Context) (Pagination, bool) {
	pg, err := ParsePagination(c)
	if err != nil {
		writeInvalidArgument(c, err.Error())
		return Pagination{}, false
	}
	return pg, true
}

func parseSortingOrWriteInvalid(
	c *gin.Context,
	allowed []string,
	defaultField string,
	defaultOrder string,
) (Sorting, bool) {
	s, err := ParseSorting(c, allowed, defaultField, defaultOrder)
	if err != nil {
		writeInvalidArgument(c, err.Error())
		return Sorting{}, false
	}
	return s, true
}

func parseBoolQueryOrWriteInvalid(c *gin.Context, key string) (*bool, bool) {
	v, err := ParseBoolQuery(c, key)
	if err != nil {
		writeInvalidArgument(c, err.Error())
		return nil, false
	}
	return v, true
}

func readRawBodyOrWriteInvalid(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		writeInvalidArgument(c, "request body is required")
		return nil, false
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writePayloadTooLarge(c, maxErr.Limit)
			return nil, false
		}
		writeInvalidArgument(c, "failed to read body")
		return nil, false
	}
	return body, true
}

func requireUUIDPathParam(c *gin.Context, paramName, fieldName string) (string, bool) {
	value := c.Param(paramName)
	if !ValidateUUID(value) {
		writeInvalidArgument(c, fmt.Sprintf("%s: must be a valid UUID", fieldName))
		return "", false
	}
	return value, true
}

func parseOptionalUUIDQuery(c *gin.Context, queryKey, fieldName string) (string, bool) {
	value := c.Query(queryKey)
	if value == "" {
		return "", true
	}
	if !ValidateUUID(value) {
		writeInvalidArgument(c, fmt.Sprintf("%s: must be a valid UUID", fieldName))
		return "", false
	}
	return value, true
}
