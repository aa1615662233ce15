package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"chatgraph/internal/app"
	"chatgraph/pkg/config"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfg, err := config.Load(cfgVal, !setFlags["config"])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	config.ApplyEnvOverrides(cfg)

	// explicit flags win over config and env
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	dbPath := cfg.DBPath()
	if setFlags["db"] {
		dbPath = dbVal
	}

	a, err := app.New(cfg, addr, dbPath)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
