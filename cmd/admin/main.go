package main

import (
	"context"
	"flag"
	"os"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/app"
	"github.com/shrimpsizemoose/homeroom/internal/homework"
	"github.com/shrimpsizemoose/homeroom/internal/roster"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}

	st, err := app.NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		logger.Error.Fatalf("Failed to init store: %v", err)
	}
	defer st.Close()

	blobs, err := app.NewBlobStore(context.Background(), config)
	if err != nil {
		logger.Error.Fatalf("Failed to init blob storage: %v", err)
	}

	rs := roster.NewService(st)
	cli := commandLine{
		roster:   rs,
		homework: homework.NewService(st, blobs, access.NewGate(rs)),
		out:      os.Stdout,
	}
	if err := cli.run(append([]string{os.Args[0]}, flag.Args()...)); err != nil {
		if err != errHelp {
			logger.Error.Printf("%v", err)
		}
		os.Exit(1)
	}
}
