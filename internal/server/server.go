// Package server assembles the echo instance both services run on.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/correlation"
	"github.com/RosanaConstantin/cna-introspect/internal/logging"
)

const bodyLimit = "10M"

// Options configures New.
type Options struct {
	Service string
	Version string
	Logger  *log.Logger
	// Registry receives the HTTP metrics; nil means the process-wide default.
	Registry *prometheus.Registry
	// ErrorBody lets a service add fields to the catch-all error response.
	ErrorBody func(body map[string]any)
}

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// New returns an echo instance with the shared middleware chain, the health
// endpoint and the metrics endpoint registered.
func New(opts Options) *echo.Echo {
	if opts.Logger == nil {
		panic("server.New: logger is required")
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(opts)

	e.Use(correlation.Middleware())
	e.Use(RequestLogger(opts.Logger))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			opts.Logger.WithFields(log.Fields{
				logging.FieldCorrelationID: correlation.FromEcho(c),
				logging.FieldError:         err.Error(),
				logging.FieldStack:         string(stack),
			}).Error("Unhandled error")
			return err
		},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  metricsSubsystem(opts.Service),
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
	}))

	e.GET("/health", health(opts.Service, opts.Version))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return e
}

func health(service, version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{
			Status:    "healthy",
			Service:   service,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Version:   version,
		})
	}
}

// RequestLogger emits one "HTTP Request" line per request once the response
// status is known.
func RequestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.WithFields(log.Fields{
				logging.FieldCorrelationID: correlation.FromEcho(c),
				"method":                   c.Request().Method,
				"path":                     c.Request().URL.Path,
				"statusCode":               c.Response().Status,
				"duration":                 fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
			}).Info("HTTP Request")
			return nil
		}
	}
}

// errorHandler guarantees every request ends with a JSON body carrying the
// correlation id, whatever path the error took.
func errorHandler(opts Options) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		id := correlation.FromEcho(c)
		code := http.StatusInternalServerError
		msg := "Internal server error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			opts.Logger.WithFields(log.Fields{
				logging.FieldCorrelationID: id,
				logging.FieldError:         err.Error(),
			}).Error("Unhandled error")
		}

		body := map[string]any{
			"error":         msg,
			"correlationId": id,
		}
		if opts.ErrorBody != nil {
			opts.ErrorBody(body)
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, body)
		}
		if werr != nil {
			opts.Logger.WithError(werr).Error("failed to write error response")
		}
	}
}

func metricsSubsystem(service string) string {
	out := make([]rune, 0, len(service))
	for _, r := range service {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
