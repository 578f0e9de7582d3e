// The shop service exposes CRUD endpoints for the webshop catalog. Purchase
// flows and product filters live in a separate module that consumes these
// endpoints.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/makerspace/memberd/cmd/flags"
	"github.com/makerspace/memberd/common"
	"github.com/makerspace/memberd/db"
	"github.com/makerspace/memberd/entity"
	"github.com/makerspace/memberd/gateway"
	"github.com/makerspace/memberd/service"
)

const permissionWebshopEdit = "webshop_edit"

var portFlag = &cli.IntFlag{
	Name:    "port",
	EnvVars: []string{"PORT"},
	Value:   8013,
	Usage:   "port to listen on",
}

func main() {
	app := &cli.App{
		Name:   "shop",
		Usage:  "Serve the webshop catalog CRUD API",
		Flags:  append([]cli.Flag{portFlag}, flags.ServiceFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	debug, err := flags.ParseDebug(cCtx)
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx, "shop", debug)

	handle := db.New(flags.DatabaseConfig(cCtx), logger)
	gw := gateway.New(flags.GatewayConfig(cCtx))

	svc, err := service.New(&service.Config{
		Name:        "shop",
		URL:         "webshop",
		Port:        cCtx.Int(portFlag.Name),
		Version:     common.Version,
		Debug:       debug,
		MetricsAddr: cCtx.String(flags.MetricsAddrFlag.Name),
		Log:         logger,
		DB:          handle,
		Gateway:     gw,
	})
	if err != nil {
		return err
	}

	categories, err := entity.New("webshop_product_categories", []entity.Column{
		{Name: "name"},
		{Name: "created_at", Type: entity.DateTime, OmitWrite: true},
		{Name: "updated_at", Type: entity.DateTime, OmitWrite: true},
	})
	if err != nil {
		return err
	}

	products, err := entity.New("webshop_products", []entity.Column{
		{Name: "category_id", Alias: "category"},
		{Name: "name"},
		{Name: "description"},
		{Name: "unit"},
		{Name: "price", Type: entity.Decimal},
		{Name: "smallest_multiple"},
		{Name: "created_at", Type: entity.DateTime, OmitWrite: true},
		{Name: "updated_at", Type: entity.DateTime, OmitWrite: true},
	})
	if err != nil {
		return err
	}

	categories.AddRoutes(svc, "category",
		entity.ReadPermission(service.PermissionNone), entity.WritePermission(permissionWebshopEdit))
	products.AddRoutes(svc, "product",
		entity.ReadPermission(service.PermissionNone), entity.WritePermission(permissionWebshopEdit))

	if err := svc.Start(context.Background()); err != nil {
		return err
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	logger.Info("Service is running")
	<-exit
	logger.Info("Shutdown signal received")

	svc.Shutdown()
	return nil
}
