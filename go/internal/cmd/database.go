package main

import (
	"context"
	"fmt"

	"github.com/brackethq/calcutta/go/internal/store"
)

func setupDatabase(ctx context.Context) (*store.Client, error) {
	cfg := store.NewConfigFromEnv()

	client, err := store.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := client.Migrate(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return client, nil
}
