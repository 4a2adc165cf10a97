package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyforge/accessreview/internal/cache"
	"github.com/keyforge/accessreview/internal/config"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/review"
	"github.com/keyforge/accessreview/internal/secrets"
)

// resolveAPIToken returns the KeyForge token, preferring Vault when it is configured.
func resolveAPIToken(ctx context.Context, cfg config.Config) (string, error) {
	if !cfg.VaultConfigured() {
		return cfg.KeyForgeAPIToken, nil
	}
	v, err := secrets.NewVault(secrets.Options{
		Address:   cfg.VaultAddr,
		Namespace: cfg.VaultNamespace,
		Token:     cfg.VaultToken,
		KVMount:   cfg.VaultKVMount,
	})
	if err != nil {
		return "", err
	}
	token, err := v.APIToken(ctx, cfg.VaultTokenPath)
	if err != nil {
		return "", fmt.Errorf("read keyforge token from vault: %w", err)
	}
	return token, nil
}

func newClient(ctx context.Context, cfg config.Config) (*keyforge.Client, error) {
	token, err := resolveAPIToken(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return keyforge.New(cfg.KeyForgeBaseURL, cfg.KeyForgeTenant, token, cfg.KeyForgeTimeout)
}

type serviceDeps struct {
	Bus    *events.Bus
	Audit  review.AuditRecorder
	Logger *slog.Logger
}

func newReviewService(client *keyforge.Client, cfg config.Config, deps serviceDeps) *review.Service {
	return review.NewService(client, review.Options{
		Cache:               cache.New(cfg.CacheTTL),
		Bus:                 deps.Bus,
		Audit:               deps.Audit,
		Logger:              deps.Logger,
		CertPageSize:        cfg.CertPageSize,
		UserPageSize:        cfg.UserPageSize,
		EntitlementPageSize: cfg.EntitlementPageSize,
		FanoutWorkers:       cfg.FanoutWorkers,
	})
}

// loadClientService is the setup shared by the one-shot operator commands.
func loadClientService(ctx context.Context) (config.Config, *keyforge.Client, *review.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	svc := newReviewService(client, cfg, serviceDeps{Logger: slog.Default()})
	return cfg, client, svc, nil
}
