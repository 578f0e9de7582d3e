// Package flags holds the cli flags shared by all memberd service binaries.
// Every configuration value is bound to an environment variable; a missing
// or malformed value is a fatal startup error.
package flags

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/makerspace/memberd/common"
	"github.com/makerspace/memberd/db"
	"github.com/makerspace/memberd/gateway"
)

var MysqlHostFlag = &cli.StringFlag{
	Name:     "mysql-host",
	EnvVars:  []string{"MYSQL_HOST"},
	Required: true,
	Usage:    "database address as host:port",
}

var MysqlDBFlag = &cli.StringFlag{
	Name:     "mysql-db",
	EnvVars:  []string{"MYSQL_DB"},
	Required: true,
	Usage:    "database name",
}

var MysqlUserFlag = &cli.StringFlag{
	Name:     "mysql-user",
	EnvVars:  []string{"MYSQL_USER"},
	Required: true,
	Usage:    "database user",
}

var MysqlPassFlag = &cli.StringFlag{
	Name:     "mysql-pass",
	EnvVars:  []string{"MYSQL_PASS"},
	Required: true,
	Usage:    "database password",
}

var GatewayHostFlag = &cli.StringFlag{
	Name:     "apigateway",
	EnvVars:  []string{"APIGATEWAY"},
	Required: true,
	Usage:    "API gateway address",
}

var BearerFlag = &cli.StringFlag{
	Name:     "bearer",
	EnvVars:  []string{"BEARER"},
	Required: true,
	Usage:    "bearer credential for gateway calls",
}

var HostFrontendFlag = &cli.StringFlag{
	Name:     "host-frontend",
	EnvVars:  []string{"HOST_FRONTEND"},
	Required: true,
	Usage:    "public-facing hostname",
}

var HostBackendFlag = &cli.StringFlag{
	Name:     "host-backend",
	EnvVars:  []string{"HOST_BACKEND"},
	Required: true,
	Usage:    "internal hostname",
}

var AppDebugFlag = &cli.StringFlag{
	Name:     "app-debug",
	EnvVars:  []string{"APP_DEBUG"},
	Required: true,
	Usage:    "debug flag, must be exactly 'true' or 'false'",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	EnvVars: []string{"METRICS_ADDR"},
	Value:   "",
	Usage:   "address to listen on for Prometheus metrics, empty disables",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

// ServiceFlags is the flag set every service binary carries.
var ServiceFlags = []cli.Flag{
	MysqlHostFlag,
	MysqlDBFlag,
	MysqlUserFlag,
	MysqlPassFlag,
	GatewayHostFlag,
	BearerFlag,
	HostFrontendFlag,
	HostBackendFlag,
	AppDebugFlag,
	MetricsAddrFlag,
	LogJSONFlag,
	LogUIDFlag,
}

// ParseDebug validates the APP_DEBUG value. Anything other than exactly
// "true" or "false" is an error, which terminates startup before any port
// is bound.
func ParseDebug(cCtx *cli.Context) (bool, error) {
	return ParseDebugValue(cCtx.String(AppDebugFlag.Name))
}

// ParseDebugValue implements the strict true/false check for ParseDebug.
func ParseDebugValue(value string) (bool, error) {
	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("APP_DEBUG environment variable must be either 'true' or 'false', found '%s'", value)
	}
}

// SetupLogger builds the process logger from the log flags.
func SetupLogger(cCtx *cli.Context, serviceName string, debug bool) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   debug,
		JSON:    cCtx.Bool(LogJSONFlag.Name),
		Service: serviceName,
		Version: common.Version,
	})

	if cCtx.Bool(LogUIDFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// DatabaseConfig collects the database connection parameters.
func DatabaseConfig(cCtx *cli.Context) db.Config {
	return db.Config{
		Host:     cCtx.String(MysqlHostFlag.Name),
		Name:     cCtx.String(MysqlDBFlag.Name),
		User:     cCtx.String(MysqlUserFlag.Name),
		Password: cCtx.String(MysqlPassFlag.Name),
	}
}

// GatewayConfig collects the gateway client parameters.
func GatewayConfig(cCtx *cli.Context) gateway.Config {
	return gateway.Config{
		Host:         cCtx.String(GatewayHostFlag.Name),
		Key:          cCtx.String(BearerFlag.Name),
		HostFrontend: cCtx.String(HostFrontendFlag.Name),
		HostBackend:  cCtx.String(HostBackendFlag.Name),
	}
}
