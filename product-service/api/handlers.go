// Package api exposes the product service over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/correlation"
	"github.com/RosanaConstantin/cna-introspect/internal/logging"
	"github.com/RosanaConstantin/cna-introspect/product-service/domain"
	"github.com/RosanaConstantin/cna-introspect/product-service/publish"
)

const (
	productsRoute      = "/api/products"
	postProductMaxSize = 10 << 20
)

// EventPublisher is the part of publish.Publisher the handlers depend on.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.ProductEvent, correlationID string) (publish.Ack, error)
}

// Options configures Register.
type Options struct {
	Publisher EventPublisher
	Logger    *log.Logger
	// RetryAfter is the hint, in seconds, returned when the substrate is down.
	RetryAfter int
	Now        func() time.Time
}

// Register wires up the product routes on the provided Echo instance.
func Register(e *echo.Echo, opts Options) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 30
	}
	e.POST(productsRoute, postProduct(opts))
}

type createProductResponse struct {
	Message       string         `json:"message"`
	Product       domain.Product `json:"product"`
	CorrelationID string         `json:"correlationId"`
}

type errorResponse struct {
	Error         string   `json:"error"`
	Details       []string `json:"details,omitempty"`
	CorrelationID string   `json:"correlationId"`
	RetryAfter    int      `json:"retryAfter,omitempty"`
}

func postProduct(opts Options) echo.HandlerFunc {
	logger := opts.Logger
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := correlation.FromEcho(c)
		metrics := newProductRequestMetrics(logger, id)
		var stageErr error
		defer func() {
			metrics.Log(c.Response().Status, stageErr)
		}()

		decodeStart := time.Now()
		var req domain.CreateProductRequest
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, postProductMaxSize))
		decodeErr := dec.Decode(&req)
		if errors.Is(decodeErr, io.EOF) {
			// An empty body is an empty request.
			decodeErr = nil
		}
		metrics.ObserveDecode(time.Since(decodeStart))
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			stageErr = decodeErr
			logger.WithFields(log.Fields{
				logging.FieldCorrelationID: id,
				logging.FieldError:         decodeErr.Error(),
			}).Warn("Invalid request body")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body", CorrelationID: id})
		}

		product, validErr := domain.ValidateCreateProduct(req)
		if validErr != nil {
			metrics.SetErrorStage("validation")
			stageErr = validErr
			var ve *domain.ValidationError
			if !errors.As(validErr, &ve) {
				return validErr
			}
			logger.WithFields(log.Fields{
				logging.FieldCorrelationID: id,
				"errors":                   ve.Details,
			}).Warn("Validation failed")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Validation failed", Details: ve.Details, CorrelationID: id})
		}

		logger.WithFields(log.Fields{
			logging.FieldCorrelationID: id,
			"productId":                product.ID,
		}).Info("Creating product")

		ev := domain.NewProductEvent(product, id, opts.Now())
		publishStart := time.Now()
		ack, pubErr := opts.Publisher.Publish(ctx, ev, id)
		metrics.ObservePublish(time.Since(publishStart), ack.Attempts)
		if pubErr != nil {
			metrics.SetErrorStage("publish")
			stageErr = pubErr
			return publishFailed(c, logger, opts.RetryAfter, id, pubErr)
		}

		logger.WithFields(log.Fields{
			logging.FieldCorrelationID: id,
			"productId":                product.ID,
			"attempts":                 ack.Attempts,
		}).Info("Product event published successfully")
		return c.JSON(http.StatusOK, createProductResponse{
			Message:       "Product created and event published",
			Product:       product,
			CorrelationID: id,
		})
	}
}

func publishFailed(c echo.Context, logger *log.Logger, retryAfter int, id string, err error) error {
	entry := logger.WithFields(log.Fields{
		logging.FieldCorrelationID: id,
		logging.FieldError:         err.Error(),
	})
	switch publish.Classify(err) {
	case publish.SubstrateUnavailable:
		entry.Error("Failed to publish product event")
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:         "Service temporarily unavailable",
			CorrelationID: id,
			RetryAfter:    retryAfter,
		})
	case publish.Cancelled:
		entry.Warn("Publish abandoned, client went away")
	default:
		entry.Error("Failed to publish product event")
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to publish product event", CorrelationID: id})
}
