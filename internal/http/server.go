package httpapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/keyforge/accessreview/internal/export"
	"github.com/keyforge/accessreview/internal/http/handlers"
	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/logging"
	"github.com/keyforge/accessreview/internal/review"
)

const (
	sessionCookieName = "accessreview_session"
	maxRequestIDLen   = 128
)

// Deps are the collaborators the HTTP API serves.
type Deps struct {
	Review   *review.Service
	Exporter *export.Exporter
	Audit    handlers.AuditLister
	Sessions *scs.SessionManager
	Progress *handlers.ProgressBoard
	Logger   *slog.Logger
}

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h        *handlers.Handlers
	e        *echo.Echo
	sessions *scs.SessionManager
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(deps Deps) (*EchoServer, error) {
	if deps.Review == nil {
		return nil, errors.New("review service is required")
	}
	e := echo.New()
	e.Logger = logging.Component(deps.Logger, "http")

	h := &handlers.Handlers{
		Review:   deps.Review,
		Exporter: deps.Exporter,
		Audit:    deps.Audit,
		Sessions: deps.Sessions,
		Progress: deps.Progress,
	}
	es := &EchoServer{h: h, e: e, sessions: deps.Sessions}
	e.HTTPErrorHandler = es.httpErrorHandler
	e.Use(requestID)
	e.Use(middleware.Recover())
	e.Use(accessLog)
	es.registerRoutes()
	return es, nil
}

// NewSessionManager builds the session store that hands state between views. Sessions live
// in Postgres when a pool is given and in memory otherwise.
func NewSessionManager(pool *pgxpool.Pool, lifetime time.Duration, secure bool) *scs.SessionManager {
	sm := scs.New()
	if lifetime > 0 {
		sm.Lifetime = lifetime
	}
	sm.Cookie.Name = sessionCookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.Path = "/"
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secure
	if pool != nil {
		sm.Store = pgxstore.New(pool)
	}
	return sm
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("/api")
	api.GET("/session", es.h.HandleSessionShow)
	api.POST("/session", es.h.HandleSessionCreate)
	api.DELETE("/session", es.h.HandleSessionDestroy)

	certs := api.Group("/reviewers/:reviewerId/certifications")
	certs.GET("", es.h.HandleCertifications)

	cert := certs.Group("/:certId")
	cert.POST("/reassign", es.h.HandleReassign)
	cert.POST("/signoff", es.h.HandleSignOff)
	cert.POST("/claim", es.h.HandleClaim)
	cert.GET("/open", es.h.HandleOpen)
	cert.GET("/export.xlsx", es.h.HandleExport)
	cert.GET("/users", es.h.HandleUsers)
	cert.POST("/users/scroll", es.h.HandleUsersScroll)
	cert.GET("/users/:taskId/entitlements", es.h.HandleEntitlements)
	cert.GET("/drilldown", es.h.HandleDrilldownState)
	cert.GET("/progress", es.h.HandleProgress)
	cert.POST("/remediation/candidates", es.h.HandleRemediationCandidates)
	cert.POST("/remediation/conditional-access", es.h.HandleConditionalAccess)
	cert.POST("/remediation/modify-access", es.h.HandleModifyAccess)
	cert.POST("/remediation/revoke", es.h.HandleRevoke)
	cert.GET("/audit", es.h.HandleAudit)

	api.GET("/campaigns/:campaignId/analytics", es.h.HandleCampaignAnalytics)
}

// Handler returns the API with session loading and saving wrapped around it.
func (es *EchoServer) Handler() http.Handler {
	if es.sessions == nil {
		return es.e
	}
	return es.sessions.LoadAndSave(es.e)
}

func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(echo.HeaderXRequestID))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

func accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		req := c.Request()
		c.Logger().Debug("http request",
			"request_id", handlers.RequestID(c),
			"method", req.Method,
			"path", req.URL.Path,
			"duration", time.Since(start),
			"err", err,
		)
		return err
	}
}

type statusCoder interface {
	StatusCode() int
}

func httpStatusFromError(err error) int {
	var apiErr *keyforge.APIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, review.ErrValidation), errors.Is(err, export.ErrInvalidCertificationID):
		return http.StatusBadRequest
	case errors.Is(err, review.ErrInvalidPassword):
		return http.StatusUnauthorized
	case errors.Is(err, review.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrPageChangeInFlight):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 600 {
			return code
		}
	}
	return http.StatusInternalServerError
}

func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Logger().Debug("request canceled", "request_id", handlers.RequestID(c))
		return
	}

	var renderErr error
	switch status := httpStatusFromError(err); {
	case errors.Is(err, review.ErrValidation), errors.Is(err, export.ErrInvalidCertificationID):
		renderErr = handlers.RenderValidation(c, err)
	case errors.Is(err, review.ErrInvalidPassword):
		renderErr = handlers.RenderUnauthorized(c)
	case errors.Is(err, review.ErrPageChangeInFlight):
		renderErr = handlers.RenderConflict(c, err)
	case status == http.StatusBadGateway:
		renderErr = handlers.RenderBackendError(c, err)
	case status == http.StatusNotFound:
		renderErr = handlers.RenderNotFound(c)
	case status >= http.StatusInternalServerError:
		renderErr = handlers.RenderError(c, err)
	default:
		renderErr = c.String(status, http.StatusText(status))
	}
	if renderErr != nil {
		c.Logger().Error("failed to write error response", "request_id", handlers.RequestID(c), "err", renderErr)
	}
}
