package main

import (
	"log"

	"diary/internal/config"
	"diary/internal/db"
	"diary/internal/diary"
	"diary/internal/github"

	"gorm.io/gorm"
)

// app bundles what every subcommand builds from the environment.
type app struct {
	cfg    config.Config
	db     *gorm.DB
	github *github.Client
	svc    *diary.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		return nil, err
	}

	gh := github.New(cfg.GitHubAPIURL, cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubBranch, cfg.JournalLabel)
	svc := &diary.Service{
		Store:      &diary.Store{DB: gdb},
		Publisher:  gh,
		Location:   cfg.Timezone,
		Label:      cfg.JournalLabel,
		MergeLease: cfg.MergeLease,
		Logger:     log.Default(),
	}
	return &app{cfg: cfg, db: gdb, github: gh, svc: svc}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
