package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/rs/zerolog"

	"github.com/knot-edge/gateway/internal/pkg/infrastructure/router"
	"github.com/knot-edge/gateway/internal/pkg/knot/audit"
	"github.com/knot-edge/gateway/internal/pkg/knot/bus"
	"github.com/knot-edge/gateway/internal/pkg/knot/cloud"
	"github.com/knot-edge/gateway/internal/pkg/knot/events"
	"github.com/knot-edge/gateway/internal/pkg/knot/gateway"
	"github.com/knot-edge/gateway/internal/pkg/knot/httpcloud"
	"github.com/knot-edge/gateway/internal/pkg/knot/schema"
	"github.com/knot-edge/gateway/internal/pkg/presentation/api"
)

const serviceName string = "knot-gateway"

var opaFilePath string
var compatFilePath string
var notificationConfigPath string

func main() {
	ctx := context.Background()

	serviceVersion := buildinfo.SourceVersion()
	_, bootLogger, cleanup := o11y.Init(ctx, serviceName, serviceVersion)
	defer cleanup()

	flag.StringVar(&opaFilePath, "policies", "/opt/knot/config/authz.rego", "An authorization policy file for the admin API")
	flag.StringVar(&compatFilePath, "compat", "", "A YAML file describing the accepted (type_id, value_type, unit) schema triples; the built-in defaults are used if unset")
	flag.StringVar(&notificationConfigPath, "notifications", "/opt/knot/config/notifications.yaml", "Configuration file for session lifecycle notifications")
	flag.Parse()

	logger := slog.Default()

	apiPort := fmt.Sprintf(":%s", env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080"))

	auditLog := setupAuditLogOrDie(ctx, bootLogger)
	messenger := setupMessagingOrDie(bootLogger)
	cloudAdapter := setupCloudAdapterOrDie(ctx, bootLogger)
	compat := loadCompatTableOrDie(bootLogger)
	eventNotifier := events.New(loadEventConfig(bootLogger))

	g := gateway.New(gateway.Config{
		Cloud:  cloudAdapter,
		Compat: compat,
		Logger: logger,
		Audit:  auditLog,
		Events: eventNotifier,
		Bus:    bus.New(messenger),
	})

	g.Start()
	defer g.Stop()

	r := setupRouter(logger, g, auditLog)

	err := http.ListenAndServe(apiPort, r)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to start router")
	}
}

func setupAuditLogOrDie(ctx context.Context, logger zerolog.Logger) *audit.Log {
	var connect audit.ConnectorFunc

	if os.Getenv("POSTGRES_HOST") != "" {
		connect = audit.NewPostgreSQLConnector(ctx, audit.LoadConfigFromEnv(ctx))
	} else {
		logger.Info().Msg("no postgres host configured, using an in-memory audit log instead")
		connect = audit.NewSQLiteConnector(ctx)
	}

	log, err := audit.New(connect)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open audit log")
	}

	return log
}

func setupMessagingOrDie(logger zerolog.Logger) messaging.MsgContext {
	config := messaging.LoadConfiguration(serviceName, logger)
	messenger, err := messaging.Initialize(config)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init messenger")
	}

	return messenger
}

func setupCloudAdapterOrDie(ctx context.Context, logger zerolog.Logger) cloud.Adapter {
	baseURL := env.GetVariableOrDefault(ctx, "KNOT_CLOUD_BASE_URL", "")
	tokenURL := env.GetVariableOrDefault(ctx, "KNOT_CLOUD_TOKEN_URL", "")
	clientID := env.GetVariableOrDefault(ctx, "KNOT_CLOUD_CLIENT_ID", "")
	clientSecret := env.GetVariableOrDefault(ctx, "KNOT_CLOUD_CLIENT_SECRET", "")
	insecureTLS := env.GetVariableOrDefault(ctx, "KNOT_CLOUD_INSECURE_TLS", "false") == "true"

	adapter, err := httpcloud.New(ctx, baseURL, tokenURL, clientID, clientSecret, insecureTLS)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure cloud adapter")
	}

	return adapter
}

func loadCompatTableOrDie(logger zerolog.Logger) schema.CompatTable {
	if compatFilePath == "" {
		return schema.DefaultCompatTable()
	}

	f, err := os.Open(compatFilePath)
	if err != nil {
		logger.Fatal().Err(err).Msgf("unable to open schema compatibility file %s", compatFilePath)
	}
	defer f.Close()

	compat, err := schema.LoadCompatTable(f)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse schema compatibility file")
	}

	return compat
}

func loadEventConfig(logger zerolog.Logger) *events.Config {
	if f, err := os.Open(notificationConfigPath); err == nil {
		defer f.Close()

		cfg, err := events.LoadConfiguration(f)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load notification configuration")
		}

		return cfg
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Fatal().Err(err).Msgf("failed to open configuration file %s", notificationConfigPath)
	}

	return nil
}

func setupRouter(logger *slog.Logger, g *gateway.Gateway, auditLog *audit.Log) http.Handler {
	r := router.New(serviceName)

	policies, err := os.Open(opaFilePath)
	if err != nil {
		logger.Error("unable to open opa policy file", "path", opaFilePath, "err", err.Error())
		os.Exit(1)
	}
	defer policies.Close()

	mux, err := api.RegisterHandlers(logger, r, policies, g, g, auditLog)
	if err != nil {
		logger.Error("failed to register admin api handlers", "err", err.Error())
		os.Exit(1)
	}

	return mux
}
