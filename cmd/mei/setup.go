package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/maithemewp/mai-engine-installer/internal/installer"
	"github.com/maithemewp/mai-engine-installer/internal/migrate"
	"github.com/maithemewp/mai-engine-installer/internal/registry"
)

// openRegistry opens the component registry, exiting on failure.
func openRegistry(ctx context.Context) *registry.DB {
	db, err := registry.Open(ctx, cfg.RegistryPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening registry: %v\n", err)
		os.Exit(1)
	}
	return db
}

// openRegistryIfExists returns nil when no registry has been created yet.
func openRegistryIfExists(ctx context.Context) *registry.DB {
	if _, err := os.Stat(cfg.RegistryPath()); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return openRegistry(ctx)
}

// migrationOptions returns the configured migrator options.
func migrationOptions() migrate.Options {
	opts := cfg.MigrationOptions()
	opts.Logger = logger.Logger
	return opts
}

// registryAuthorizer allows component changes when the registry file is
// writable by the current user.
func registryAuthorizer(path string) installer.Authorizer {
	return installer.AuthorizerFunc(func(ctx context.Context) bool {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return false
		}
		_ = f.Close()
		return true
	})
}

// newInstaller builds the pipeline against db.
func newInstaller(db *registry.DB, confirm installer.ConfirmFunc) *installer.Installer {
	inst, err := installer.New(installer.Options{
		Migration:       migrationOptions(),
		LegacyComponent: cfg.Components.Legacy,
		SelfComponent:   cfg.Components.Self,
		Registry:        db,
		Authorizer:      registryAuthorizer(db.Path()),
		Confirm:         confirm,
		Logger:          logger.Logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return inst
}
