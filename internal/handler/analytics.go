package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/skyvault/backend/internal/analytics"
)

// AnalyticsHandler serves the storage usage and cost report.
type AnalyticsHandler struct {
	aggregator   *analytics.Aggregator
	jwtSecret    string
	defaultOwner string
	opTimeout    time.Duration
	log          zerolog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(aggregator *analytics.Aggregator, jwtSecret, defaultOwner string, opTimeout time.Duration, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		aggregator:   aggregator,
		jwtSecret:    jwtSecret,
		defaultOwner: defaultOwner,
		opTimeout:    opTimeout,
		log:          log,
	}
}

// StorageMetrics handles GET /analytics/storage. Request counts may be
// passed as putRequests/getRequests query parameters when the caller has a
// metrics source; they default to zero.
func (h *AnalyticsHandler) StorageMetrics(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ownerID, err := OwnerID(req, h.jwtSecret, h.defaultOwner)
	if err != nil {
		return failure(err), nil
	}

	counts := analytics.RequestCounts{
		Put: floatParam(req.QueryStringParameters, "putRequests"),
		Get: floatParam(req.QueryStringParameters, "getRequests"),
	}

	if h.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opTimeout)
		defer cancel()
	}

	metrics, err := h.aggregator.Collect(ctx, counts)
	if err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Msg("storage metrics collection failed")
		return errorResponse(http.StatusInternalServerError, "failed to collect storage metrics"), nil
	}
	return jsonResponse(http.StatusOK, metrics), nil
}

func floatParam(params map[string]string, name string) float64 {
	v, err := strconv.ParseFloat(params[name], 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
