// Package api exposes the order service over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/propagation"

	"github.com/RosanaConstantin/cna-introspect/internal/correlation"
	"github.com/RosanaConstantin/cna-introspect/internal/logging"
	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
)

const eventMaxSize = 10 << 20

// EventHandler is the part of domain.Processor the handlers depend on.
type EventHandler interface {
	Handle(ctx context.Context, env domain.Envelope, fallbackID string) (domain.Result, error)
}

// OrderReader looks up stored orders.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
}

// Subscription tells the sidecar which topic to deliver to which route.
type Subscription struct {
	PubSubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// Options configures Register.
type Options struct {
	Handler      EventHandler
	Orders       OrderReader
	Subscription Subscription
	Logger       *log.Logger
}

// Register wires up the order routes on the provided Echo instance.
func Register(e *echo.Echo, opts Options) {
	e.GET("/dapr/subscribe", getSubscriptions(opts.Logger, []Subscription{opts.Subscription}))
	e.POST(opts.Subscription.Route, postProductEvent(opts.Handler, opts.Logger))
	e.GET("/api/orders/:orderId", getOrder(opts.Orders, opts.Logger))
}

type eventResponse struct {
	Success       bool     `json:"success"`
	OrderID       string   `json:"orderId,omitempty"`
	Duplicate     bool     `json:"duplicate,omitempty"`
	Error         string   `json:"error,omitempty"`
	Details       []string `json:"details,omitempty"`
	CorrelationID string   `json:"correlationId"`
}

func getSubscriptions(logger *log.Logger, subs []Subscription) echo.HandlerFunc {
	return func(c echo.Context) error {
		logger.WithFields(log.Fields{
			logging.FieldCorrelationID: correlation.FromEcho(c),
			"subscriptions":            subs,
		}).Info("Dapr subscription requested")
		return c.JSON(http.StatusOK, subs)
	}
}

func postProductEvent(h EventHandler, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := propagation.TraceContext{}.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		fallback := correlation.FromEcho(c)

		var env domain.Envelope
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(req.Body, eventMaxSize))
		if err := dec.Decode(&env); err != nil {
			logger.WithFields(log.Fields{
				logging.FieldCorrelationID: fallback,
				logging.FieldError:         err.Error(),
			}).Warn("Invalid request body")
			return c.JSON(http.StatusBadRequest, eventResponse{
				Error:         "Invalid request body",
				CorrelationID: fallback,
			})
		}

		res, err := h.Handle(ctx, env, fallback)
		if err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				return c.JSON(http.StatusBadRequest, eventResponse{
					Error:         "Invalid event data",
					Details:       ve.Details,
					CorrelationID: res.CorrelationID,
				})
			}
			return c.JSON(http.StatusInternalServerError, eventResponse{
				Error:         "Failed to process product event",
				CorrelationID: res.CorrelationID,
			})
		}
		return c.JSON(http.StatusOK, eventResponse{
			Success:       true,
			OrderID:       res.Order.OrderID,
			Duplicate:     res.Duplicate,
			CorrelationID: res.CorrelationID,
		})
	}
}

func getOrder(orders OrderReader, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromEcho(c)
		o, err := orders.Get(c.Request().Context(), c.Param("orderId"))
		if errors.Is(err, domain.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, eventResponse{Error: "Order not found", CorrelationID: id})
		}
		if err != nil {
			logger.WithFields(log.Fields{
				logging.FieldCorrelationID: id,
				logging.FieldError:         err.Error(),
				"orderId":                  c.Param("orderId"),
			}).Error("Failed to load order")
			return c.JSON(http.StatusInternalServerError, eventResponse{Error: "Failed to load order", CorrelationID: id})
		}
		return c.JSON(http.StatusOK, o)
	}
}
