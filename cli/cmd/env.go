// Package cmd provides CLI commands for the planlink binary.
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/planline/planlink/config"
	"github.com/planline/planlink/consent"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/metrics"
	"github.com/planline/planlink/provider"
	"github.com/planline/planlink/provider/fsprovider"
	"github.com/planline/planlink/provider/memprovider"
	"github.com/planline/planlink/provider/redisprovider"
	"github.com/planline/planlink/provider/s3provider"
	"github.com/planline/planlink/store"
	"github.com/planline/planlink/syncd"
)

// ConfigFlag selects the planlink.yaml location.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to planlink.yaml",
	Value:   "planlink.yaml",
}

// AssumeYesFlag grants sync consent without an interactive prompt.
var AssumeYesFlag = &cli.BoolFlag{
	Name:  "yes",
	Usage: "Grant sync consent non-interactively",
}

// environment bundles the components a command wires up from config.
type environment struct {
	cfg          *config.Config
	registry     *provider.Registry
	orchestrator *syncd.Orchestrator
	store        *store.Store
	collector    *metrics.Collector
}

// buildEnvironment loads the config and constructs the registry, the
// active backend, the consent store and the orchestrator.
func buildEnvironment(c *cli.Context) (*environment, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	registry := newRegistry(c.Context, cfg)
	active, err := registry.New(cfg.Storage.Backend)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(cfg.Storage.Backend)

	var grants consent.Collector
	if c.Bool("yes") {
		grants = &consent.Static{Granted: true}
	} else {
		statePath := cfg.Consent.StatePath
		if statePath == "" {
			statePath = filepathJoinHome(".planlink", "consent.json")
		}
		permStore, err := consent.NewPermissionStore(consent.Config{
			Path:   statePath,
			TTL:    cfg.PermissionTTL(),
			Prompt: promptStdin,
		})
		if err != nil {
			return nil, err
		}
		grants = permStore
	}

	orchestrator := syncd.New(syncd.Config{
		BulkConcurrency: cfg.Sync.BulkConcurrency,
	}, registry, active, grants, collector)

	env := &environment{
		cfg:          cfg,
		registry:     registry,
		orchestrator: orchestrator,
		collector:    collector,
	}

	if cfg.Store.DataDir != "" {
		local, err := store.New(store.Config{
			DataDir:   cfg.Store.DataDir,
			BackupDir: cfg.Store.BackupDir,
		}, log.NewLogger("store"), collector)
		if err != nil {
			return nil, err
		}
		env.store = local
	}
	return env, nil
}

// newRegistry registers every backend the config can construct. The
// memory backend is always available.
func newRegistry(ctx context.Context, cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(memprovider.BackendName, func() (provider.Provider, error) {
		return memprovider.New(), nil
	})
	if cfg.Storage.Filesystem.Root != "" {
		registry.Register(fsprovider.BackendName, func() (provider.Provider, error) {
			return fsprovider.New(cfg.Storage.Filesystem.Root)
		})
	}
	if cfg.Storage.S3.Bucket != "" {
		registry.Register(s3provider.BackendName, func() (provider.Provider, error) {
			return s3provider.New(ctx, s3provider.Config{
				Bucket:          cfg.Storage.S3.Bucket,
				Prefix:          cfg.Storage.S3.Prefix,
				Region:          cfg.Storage.S3.Region,
				Endpoint:        cfg.Storage.S3.Endpoint,
				UsePathStyle:    cfg.Storage.S3.PathStyle,
				AccessKeyID:     cfg.Storage.S3.AccessKeyID,
				SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			})
		})
	}
	if cfg.Storage.Redis.URL != "" {
		registry.Register(redisprovider.BackendName, func() (provider.Provider, error) {
			return redisprovider.New(redisprovider.Config{
				URL:    cfg.Storage.Redis.URL,
				Prefix: cfg.Storage.Redis.Prefix,
			})
		})
	}
	return registry
}

// promptStdin asks for consent on the terminal. Anything other than an
// explicit yes is a denial.
func promptStdin(ctx context.Context) bool {
	fmt.Fprint(os.Stderr, "Allow planlink to sync local data to remote storage? [y/N]: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func filepathJoinHome(parts ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(append([]string{home}, parts...)...)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
