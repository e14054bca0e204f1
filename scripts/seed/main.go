package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/nutrition-api/nutrition-api/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.DBDriver, err)
	}
	defer storage.Close()

	locker, client, err := app.OpenSeedLock(ctx, cfg)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	if client != nil {
		defer client.Close()
	}

	fmt.Println("→ Seeding permissions, roles and admin account...")
	report, err := app.Seed(ctx, cfg, logger, storage.Store, app.NewPasswordHasher(), locker)
	if err != nil {
		storage.Close()
		log.Fatalf("seed: %v", err)
	}
	if !report.Changed() {
		fmt.Println("✓ Nothing to do, store already seeded")
		return
	}
	fmt.Printf("✓ Seed complete: %d permissions, roles %v, admin created: %t\n",
		report.PermissionsCreated, report.RolesCreated, report.AdminCreated)
}
