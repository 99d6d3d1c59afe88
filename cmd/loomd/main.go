package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"loom/internal/app"
	"loom/pkg/config"
	"loom/pkg/logger"
	"loom/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	eff, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// flags explicitly set win over env and file values
	if setFlags["addr"] {
		eff.Addr = addrVal
		eff.Source = "flags"
	}
	if setFlags["db"] {
		eff.DBPath = dbVal
		eff.Source = "flags"
	}

	logger.Init(eff.Config.Logging.Level, eff.Config.Logging.Format)
	defer logger.Sync()

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server failed", err, eff.DBPath, 0)
	}
}
