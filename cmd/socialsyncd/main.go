package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/socialsync/internal/app"
	"github.com/dmitrijs2005/socialsync/internal/buildinfo"
	"github.com/dmitrijs2005/socialsync/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger, err := app.NewLogger(cfg, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	owner, err := app.Owner(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	backend, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer backend.Close()

	if err := app.NewDaemon(cfg, logger, backend, owner).Run(ctx); err != nil {
		logger.Error(ctx, err.Error())
	}

}
