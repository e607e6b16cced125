package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"cafe-pos/logger"
	"cafe-pos/middleware"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
)

// Handler holds what every endpoint needs. It translates JSON to service
// calls and typed service errors to HTTP responses; it owns no business
// rules.
type Handler struct {
	svc  *service.Service
	auth *middleware.Authenticator
	log  *logger.Logger
}

func New(svc *service.Service, auth *middleware.Authenticator, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{svc: svc, auth: auth, log: log}
}

var statusByKind = map[service.Kind]int{
	service.KindValidation: http.StatusBadRequest,
	service.KindConflict:   http.StatusConflict,
	service.KindNotFound:   http.StatusNotFound,
	service.KindExternal:   http.StatusBadGateway,
	service.KindSecurity:   http.StatusUnauthorized,
}

// respondError writes a typed error as {"error","code","fields"}. Anything
// untyped is logged in full and reported as a bare 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	if e, ok := service.AsError(err); ok {
		status, found := statusByKind[e.Kind]
		if !found {
			status = http.StatusBadRequest
		}
		body := gin.H{"error": e.Message, "code": e.Code}
		if len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
		c.JSON(status, body)
		return
	}

	c.Error(err)
	h.log.Error("http.internal", c.GetString("requestID"), "unhandled error", err,
		slog.String("method", c.Request.Method), slog.String("path", c.FullPath()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
}

// bindError reports a request body that failed to decode or validate.
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION_ERROR"})
}

// paramID reads a positive integer path parameter.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid " + name,
			"code":   "VALIDATION_ERROR",
			"fields": gin.H{name: "must be a positive integer"},
		})
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *gin.Context, key string) uint {
	v, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
