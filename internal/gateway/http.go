package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mcpgate/internal/config"
)

type HTTPOptions struct {
	// AdminTokenHash is a bcrypt hash. Empty leaves admin routes open.
	AdminTokenHash string
	Logger         *zap.Logger
}

// HTTPServer exposes the gateway over JSON HTTP and MCP.
type HTTPServer struct {
	svc       *Service
	adminHash []byte
	logger    *zap.Logger
	mcp       *mcpEndpoint
}

func NewHTTPServer(svc *Service, opts HTTPOptions) *HTTPServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HTTPServer{svc: svc, logger: logger}
	if opts.AdminTokenHash != "" {
		h.adminHash = []byte(opts.AdminTokenHash)
	}
	h.mcp = newMCPEndpoint(svc, "mcpgate", config.Version, logger)
	return h
}

type callRequest struct {
	Tool    string         `json:"tool" binding:"required"`
	Params  map[string]any `json:"params"`
	Timeout float64        `json:"timeout"`
}

type loadRequest struct {
	Scope string `json:"scope"`
}

func (h *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.svc.Health())
	})
	r.GET("/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.svc.ListTools())
	})
	r.GET("/providers", func(c *gin.Context) {
		respond(c, h.svc.ListProviders(c.Request.Context()))
	})
	r.GET("/config", func(c *gin.Context) {
		respond(c, h.svc.ConfigList(c.Request.Context()))
	})
	r.POST("/call", h.callHandler())
	r.Any("/mcp", gin.WrapH(h.mcp))

	admin := r.Group("", h.requireAdmin())
	admin.POST("/providers", h.addProviderHandler())
	admin.DELETE("/providers/:id", func(c *gin.Context) {
		respond(c, h.svc.RemoveProvider(c.Request.Context(), c.Param("id")))
	})
	admin.POST("/config/load", func(c *gin.Context) {
		var req loadRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, badRequest(err))
				return
			}
		}
		if req.Scope == "" {
			req.Scope = c.Query("scope")
		}
		respond(c, h.svc.ConfigLoad(c.Request.Context(), req.Scope))
	})
	admin.POST("/config/:name/enable", func(c *gin.Context) {
		respond(c, h.svc.ConfigEnable(c.Request.Context(), c.Param("name")))
	})
	admin.POST("/config/:name/disable", func(c *gin.Context) {
		respond(c, h.svc.ConfigDisable(c.Request.Context(), c.Param("name")))
	})
	return r
}

func (h *HTTPServer) callHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req callRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, badRequest(err))
			return
		}
		respond(c, h.svc.Call(c.Request.Context(), req.Tool, req.Params, req.Timeout))
	}
}

func (h *HTTPServer) addProviderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddProviderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, badRequest(err))
			return
		}
		req.AddedVia = "api"
		res := h.svc.AddProvider(c.Request.Context(), req)
		if res.OK() {
			c.JSON(http.StatusCreated, res)
			return
		}
		respond(c, res)
	}
}

func (h *HTTPServer) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(h.adminHash) == 0 {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Result{"success": false, "error": "missing bearer token", "code": "GW_UNAUTHORIZED"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(h.adminHash, []byte(token)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Result{"success": false, "error": "invalid admin token", "code": "GW_UNAUTHORIZED"})
			return
		}
		c.Next()
	}
}

func (h *HTTPServer) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func badRequest(err error) Result {
	return Result{"success": false, "error": err.Error(), "code": errValidation.Error()}
}

func respond(c *gin.Context, res Result) {
	c.JSON(statusFor(res), res)
}

func statusFor(res Result) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.Code() {
	case "REG_NOT_FOUND", "MAN_NOT_FOUND", "STORE_NOT_FOUND":
		return http.StatusNotFound
	case "REG_INVALID_PARAMS", "MAN_VALIDATION", "STORE_INVALID", "GW_VALIDATION":
		return http.StatusBadRequest
	case "STORE_DUPLICATE":
		return http.StatusConflict
	case "REG_NOT_EXECUTABLE":
		return http.StatusNotImplemented
	case "REG_MISSING_ENV":
		return http.StatusServiceUnavailable
	case codeTimeout:
		return http.StatusGatewayTimeout
	case "TOOL_REMOTE", "TOOL_BACKEND":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
