package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"

	"github.com/ahmadzakiakmal/ccp-production/catalog"
	"github.com/ahmadzakiakmal/ccp-production/config"
	"github.com/ahmadzakiakmal/ccp-production/kvstore"
	"github.com/ahmadzakiakmal/ccp-production/memstore"
	"github.com/ahmadzakiakmal/ccp-production/production"
	"github.com/ahmadzakiakmal/ccp-production/repository"
	"github.com/ahmadzakiakmal/ccp-production/server"
	"github.com/ahmadzakiakmal/ccp-production/srvreg"
)

const defaultLogLevel = "info"

var (
	configFile   string
	serverURL    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "ccp-production",
	Short:         "Work orders and job cards gated by critical control points",
	Long:          "ccp-production runs the production node and drives work orders, job cards and CCP readings against it",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the production node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostgreSQL schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrate()
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and import recipe catalogues",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a recipe catalogue without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateCatalog(cmd.OutOrStdout(), args[0])
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a recipe catalogue into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importCatalog(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML or TOML); CCP_* environment variables override it")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:6000", "Production node URL for work order and job card commands")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json/yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogImportCmd)

	registerWorkOrderCommands(rootCmd)
	registerJobCardCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and builds the logger
func loadConfig() (*config.Config, cmtlog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(cfg.LogLevel, logger, defaultLogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	return cfg, logger.With("plant", cfg.PlantID), nil
}

// openStore opens the store named by store.driver. The returned func
// releases it.
func openStore(cfg *config.Config, logger cmtlog.Logger) (production.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		repo := repository.NewRepository(logger.With("module", "repository"))
		logger.Info("Connecting to PostgreSQL", "host", cfg.Database.Host, "database", cfg.Database.Name)
		if err := repo.ConnectDB(cfg.GetDSN(), cfg.Database.ConnectAttempts); err != nil {
			return nil, nil, err
		}
		if err := repo.Migrate(); err != nil {
			repo.Close()
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Error("Closing database", "err", err)
			}
		}, nil

	case config.DriverBadger:
		logger.Info("Opening badger store", "path", cfg.Badger.Path)
		kv, err := kvstore.Open(cfg.Badger.Path, logger.With("module", "kvstore"))
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if err := kv.Close(); err != nil {
				logger.Error("Closing badger database", "err", err)
			}
		}, nil

	default:
		logger.Info("Using in-memory store; nothing survives a restart")
		return memstore.New(logger.With("module", "memstore")), func() {}, nil
	}
}

func serve() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("=== Starting CCP Production Node ===")
	logger.Info("Node", "plant_id", cfg.PlantID, "node_id", cfg.NodeID)
	logger.Info("HTTP Port", "port", cfg.HTTPPort)
	logger.Info("Store", "driver", cfg.Store.Driver, "timeout", cfg.Store.Timeout)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Catalog.Path != "" {
		if _, err := loadAndImport(context.Background(), store, cfg.Catalog.Path, logger); err != nil {
			return err
		}
	}

	coordinator := production.NewCoordinator(store, logger.With("module", "production"),
		production.WithStoreTimeout(cfg.Store.Timeout))

	info := srvreg.NodeInfo{PlantID: cfg.PlantID, NodeID: cfg.NodeID, StoreDriver: cfg.Store.Driver}
	serviceRegistry := srvreg.NewServiceRegistry(coordinator, info, logger.With("module", "srvreg"))
	serviceRegistry.RegisterDefaultServices()

	webserver := server.NewWebServer(cfg.HTTPPort, serviceRegistry, info, logger.With("module", "server"))
	if err := webserver.Start(); err != nil {
		return fmt.Errorf("starting HTTP server: %w", err)
	}

	logger.Info("=== Production Node Successfully Started ===")
	logger.Info("Production HTTP API", "url", fmt.Sprintf("http://localhost:%s", cfg.HTTPPort))
	logger.Info("Available Endpoints:")
	logger.Info("  GET  /recipes - List recipes")
	logger.Info("  GET  /work-orders - List work orders")
	logger.Info("  POST /work-orders - Create a work order")
	logger.Info("  POST /work-orders/{id}/{release|start|complete|cancel} - Work order transitions")
	logger.Info("  POST /work-orders/{id}/job-cards/{jc}/{start|readings|complete} - Job card operations")

	// Wait for interrupt signal to gracefully shut down
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Received shutdown signal, shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webserver.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP web server", "err", err)
	}
	logger.Info("Production node gracefully stopped")
	return nil
}

func migrate() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate needs store.driver %q, configured %q", config.DriverPostgres, cfg.Store.Driver)
	}
	_, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	closeStore()
	return nil
}

func validateCatalog(out io.Writer, path string) error {
	loader, err := catalog.NewLoader()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "□ Validating catalogue against schema...")
	doc, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "□ Checking recipe rules...")
	recipes, err := doc.ToRecipes()
	if err != nil {
		return err
	}
	for _, r := range recipes {
		s := r.Summary()
		fmt.Fprintf(out, "  %s v%d (%s): %d operations, %d CCP\n", s.Code, s.Version, s.Status, len(r.Operations), s.CCPCount)
	}
	fmt.Fprintf(out, "✓ %d recipes are valid\n", len(recipes))
	return nil
}

func importCatalog(out io.Writer, path string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := loadAndImport(context.Background(), store, path, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Imported %d recipes into the %s store\n", n, cfg.Store.Driver)
	return nil
}

func loadAndImport(ctx context.Context, store production.Store, path string, logger cmtlog.Logger) (int, error) {
	loader, err := catalog.NewLoader()
	if err != nil {
		return 0, err
	}
	doc, err := loader.LoadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := catalog.Import(ctx, store, doc, logger.With("module", "catalog"))
	if err != nil {
		return n, fmt.Errorf("importing catalogue %s: %w", path, err)
	}
	logger.Info("Recipe catalogue imported", "path", path, "recipes", n)
	return n, nil
}
