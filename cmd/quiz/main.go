// The quiz service exposes CRUD endpoints for quiz questions, their answer
// options and submitted answers. Scoring and statistics live in a separate
// module that consumes these endpoints.
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

const permissionQuizEdit = "quiz_edit"

var portFlag = &cli.IntFlag{
	Name:    "port",
	EnvVars: []string{"PORT"},
	Value:   8012,
	Usage:   "port to listen on",
}

func main() {
	app := &cli.App{
		Name:   "quiz",
		Usage:  "Serve the quiz CRUD API",
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
	logger := flags.SetupLogger(cCtx, "quiz", debug)

	handle := db.New(flags.DatabaseConfig(cCtx), logger)
	gw := gateway.New(flags.GatewayConfig(cCtx))

	svc, err := service.New(&service.Config{
		Name:        "quiz",
		URL:         "quiz",
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

	questions, err := entity.New("quiz_questions", []entity.Column{
		{Name: "question"},
		{Name: "answer_description"},
		{Name: "created_at", Type: entity.DateTime, OmitWrite: true},
		{Name: "updated_at", Type: entity.DateTime, OmitWrite: true},
	})
	if err != nil {
		return err
	}

	options, err := entity.New("quiz_question_options", []entity.Column{
		{Name: "question_id", Alias: "question"},
		{Name: "text"},
		{Name: "correct"},
		{Name: "answer_description"},
		{Name: "created_at", Type: entity.DateTime, OmitWrite: true},
		{Name: "updated_at", Type: entity.DateTime, OmitWrite: true},
	})
	if err != nil {
		return err
	}

	answers, err := entity.New("quiz_answers", []entity.Column{
		{Name: "question_id", Alias: "question"},
		{Name: "option_id", Alias: "option"},
		{Name: "member_id", Alias: "member"},
		{Name: "correct"},
		{Name: "created_at", Type: entity.DateTime, OmitWrite: true},
	})
	if err != nil {
		return err
	}

	questions.AddRoutes(svc, "question",
		entity.ReadPermission(permissionQuizEdit), entity.WritePermission(permissionQuizEdit))
	options.AddRoutes(svc, "question_options",
		entity.ReadPermission(permissionQuizEdit), entity.WritePermission(permissionQuizEdit))
	answers.AddRoutes(svc, "answer",
		entity.ReadPermission(permissionQuizEdit), entity.WritePermission(permissionQuizEdit))

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
