package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"guidepost/internal/apperr"
	"guidepost/internal/blobstore"
	"guidepost/internal/config"
	"guidepost/internal/models"
	"guidepost/internal/service"
	"guidepost/internal/store"
)

// app bundles the services one CLI invocation works with.
type app struct {
	cfg       *config.Config
	store     *store.Store
	blobs     *blobstore.ChunkStore
	documents *service.DocumentService
	sessions  *service.SessionService
	reconcile *service.ReconcileService
}

func openApp(cfg *config.Config) (*app, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	logger := slog.Default()
	timeout := cfg.OperationTimeout.Duration
	blobs, err := blobstore.NewChunkStore(st, blobstore.Options{
		ChunkSize:        cfg.Blobs.ChunkSize,
		OperationTimeout: timeout,
		Logger:           logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := service.Options{OperationTimeout: timeout, Logger: logger}
	return &app{
		cfg:       cfg,
		store:     st,
		blobs:     blobs,
		documents: service.NewDocumentService(st, blobs, opts),
		sessions:  service.NewSessionService(st, st, opts),
		reconcile: service.NewReconcileService(st, cfg.Maintenance.BatchSize, opts),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("close store", "error", err)
	}
}

func withApp(cfg *config.Config, fn func(*app) error) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// actor resolves the acting user from the user directory.
func (a *app) actor(ctx context.Context, userID string) (models.Actor, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.Actor{}, apperr.ValidationCode(fmt.Errorf("--as is required"), apperr.CodeMissingRequired)
	}
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return models.Actor{}, apperr.FromContext(err)
	}
	if user == nil {
		return models.Actor{}, apperr.NotFoundCode(fmt.Errorf("user %s not found", userID), apperr.CodeUserNotFound)
	}
	role, err := models.ParseRole(user.Role)
	if err != nil {
		return models.Actor{}, apperr.ValidationCode(err, apperr.CodeInvalidRole)
	}
	return models.Actor{UserID: user.ID, Role: role}, nil
}
