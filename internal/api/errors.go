package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/service"
)

func writeInvalidArgument(c *gin.Context, message string) {
	WriteError(c, http.StatusBadRequest, service.CodeInvalidArgument, message)
}

func writePayloadTooLarge(c *gin.Context, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", msg)
}

func writeDecodeBodyError(c *gin.Context, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(c, tooLarge.Limit)
		return
	}
	writeInvalidArgument(c, err.Error())
}

// writeServiceError maps service errors to HTTP response codes. Internal
// causes are logged, never sent to the client.
func writeServiceError(c *gin.Context, err error) {
	if err == nil {
		WriteError(c, http.StatusInternalServerError, service.CodeInternal, "internal server error")
		return
	}

	var svcErr *service.ServiceError
	if errors.As(err, &svcErr) {
		var status int
		switch svcErr.Code {
		case service.CodeInvalidArgument:
			status = http.StatusBadRequest
		case service.CodeNotFound:
			status = http.StatusNotFound
		case service.CodeConflict:
			status = http.StatusConflict
		default:
			status = http.StatusInternalServerError
			if svcErr.Err != nil {
				logrus.Errorf("[api] %s %s: %s: %v", c.Request.Method, c.FullPath(), svcErr.Message, svcErr.Err)
			}
		}
		WriteError(c, status, svcErr.Code, svcErr.Message)
		return
	}
	logrus.Errorf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	WriteError(c, http.StatusInternalServerError, service.CodeInternal, "internal server error")
}
