// Command seedroutes loads departments, directory users and approval routes from a YAML file.
// With -tokens it also prints development JWTs for every seeded user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"expense-approval/internal/config"
	"expense-approval/internal/database"
	"expense-approval/internal/logger"
	"expense-approval/internal/middleware"
	"expense-approval/internal/repository"
	"expense-approval/internal/service"

	"go.uber.org/zap"
)

func main() {
	file := flag.String("file", "configs/routes.example.yaml", "seed file")
	envFile := flag.String("env", "configs/.env", "env file")
	tokens := flag.Bool("tokens", false, "print development tokens for seeded users")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logg := logger.New(cfg.LogLevel, "console")
	defer func() { _ = logg.Sync() }()

	in, err := os.Open(*file)
	if err != nil {
		logg.Fatal("open seed file", zap.Error(err))
	}
	seedFile, err := parseSeed(in)
	_ = in.Close()
	if err != nil {
		logg.Fatal("read seed file", zap.Error(err))
	}

	db, err := database.Open(cfg.DBDriver, cfg.DSN(), logg)
	if err != nil {
		logg.Fatal("database connection failed", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	s := &seeder{
		users:  userRepo,
		routes: service.NewRouteService(repository.NewTransactionManager(db), repository.NewRouteRepository(db), repository.NewAuditRepository(db), logg),
		logger: logg,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.seed(ctx, seedFile); err != nil {
		logg.Fatal("seed failed", zap.Error(err))
	}

	if !*tokens {
		return
	}
	auth := middleware.NewAuth(cfg.JWTSecret)
	for _, u := range seedFile.Users {
		user, err := userRepo.GetByUsername(ctx, u.Username)
		if err != nil {
			logg.Fatal("load user", zap.String("username", u.Username), zap.Error(err))
		}
		token, err := auth.IssueToken(user.ID, user.Role, *ttl)
		if err != nil {
			logg.Fatal("issue token", zap.Error(err))
		}
		fmt.Printf("%s\t%s\t%s\n", user.Username, user.Role, token)
	}
}
