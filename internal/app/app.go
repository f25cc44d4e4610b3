// Package app wires the service together and routes API Gateway requests.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/skyvault/backend/internal/analytics"
	"github.com/skyvault/backend/internal/config"
	"github.com/skyvault/backend/internal/handler"
	"github.com/skyvault/backend/internal/logger"
	"github.com/skyvault/backend/internal/objectstore"
	"github.com/skyvault/backend/internal/secret"
	"github.com/skyvault/backend/internal/store"
	"github.com/skyvault/backend/internal/tree"
)

// App holds the request handlers and routing state.
type App struct {
	itemHandler      *handler.ItemHandler
	analyticsHandler *handler.AnalyticsHandler
	frontendURL      string
	log              zerolog.Logger
	cfg              *config.Config
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	var (
		items   store.ItemStore
		objects objectstore.ObjectStore
	)
	var resolver secret.Resolver

	if cfg.Server.DevMode {
		items = store.NewMemoryStore()
		objects = objectstore.NewMemoryObjectStore()
		resolver = secret.NewEnvResolver()
		log.Info().Msg("dev mode: in-memory stores, env secrets")
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)
		items = store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Storage.Table)
		objects = objectstore.NewS3Store(s3Client, s3.NewPresignClient(s3Client), cfg.Storage.Bucket)
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}

	jwtSecret, err := resolver.GetSecret(ctx, cfg.Auth.JWTSecretParam)
	if err != nil {
		log.Warn().Err(err).Str("param", cfg.Auth.JWTSecretParam).Msg("jwt secret unresolved, using dev fallback")
		jwtSecret = "default-dev-secret"
	}

	engine := tree.New(items, objects, log.With().Str("component", "tree").Logger())

	pricing := analytics.Pricing{
		StorageGBMonth: cfg.Pricing.StorageGBMonth,
		PutRequest:     cfg.Pricing.PutRequest,
		GetRequest:     cfg.Pricing.GetRequest,
		TransferGB:     cfg.Pricing.TransferGB,
		FreeTransferGB: cfg.Pricing.FreeTransferGB,
	}
	aggregator := analytics.New(objects, pricing)

	return &App{
		itemHandler: handler.NewItemHandler(engine, objects,
			jwtSecret, cfg.Auth.DefaultOwner,
			cfg.Storage.PresignTTL, cfg.Storage.OpTimeout, cfg.Views.RecentLimit,
			log.With().Str("component", "items").Logger()),
		analyticsHandler: handler.NewAnalyticsHandler(aggregator,
			jwtSecret, cfg.Auth.DefaultOwner, cfg.Storage.OpTimeout,
			log.With().Str("component", "analytics").Logger()),
		frontendURL: cfg.Server.FrontendURL,
		log:         log,
		cfg:         cfg,
	}, nil
}

// Config exposes the loaded configuration for the local server entrypoint.
func (app *App) Config() *config.Config {
	return app.cfg
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	app.log.Debug().Str("method", method).Str("path", path).Msg("request")

	if method == "OPTIONS" {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: 204}), nil
	}

	// Strip /api prefix if present (CloudFront proxying).
	path = strings.TrimPrefix(path, "/api")

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	if path == "/folders" && method == "POST" {
		return app.corsResponse(app.must(app.itemHandler.CreateFolder(ctx, req))), nil
	}
	if path == "/files" && method == "POST" {
		return app.corsResponse(app.must(app.itemHandler.CreateFile(ctx, req))), nil
	}

	if path == "/items" && method == "GET" {
		return app.corsResponse(app.must(app.itemHandler.ListItems(ctx, req))), nil
	}
	if strings.HasPrefix(path, "/items/") {
		parts := strings.Split(strings.Trim(path, "/"), "/")
		// parts[0] == "items"
		if len(parts) >= 2 {
			req.PathParameters["id"] = parts[1]
		}

		if len(parts) == 2 {
			switch method {
			case "PATCH":
				return app.corsResponse(app.must(app.itemHandler.UpdateItem(ctx, req))), nil
			case "DELETE":
				return app.corsResponse(app.must(app.itemHandler.DeleteItem(ctx, req))), nil
			}
		}
		if len(parts) == 3 && method == "GET" && parts[2] == "download" {
			return app.corsResponse(app.must(app.itemHandler.Download(ctx, req))), nil
		}
		if len(parts) == 3 && method == "GET" && parts[2] == "thumbnail" {
			return app.corsResponse(app.must(app.itemHandler.Thumbnail(ctx, req))), nil
		}
		if len(parts) == 3 && method == "PUT" && parts[2] == "metadata" {
			return app.corsResponse(app.must(app.itemHandler.AttachMetadata(ctx, req))), nil
		}
	}

	if path == "/analytics/storage" && method == "GET" {
		return app.corsResponse(app.must(app.analyticsHandler.StorageMetrics(ctx, req))), nil
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,DELETE,OPTIONS,PATCH"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// must unwraps a handler response, logging the error.
func (app *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		app.log.Error().Err(err).Msg("handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
