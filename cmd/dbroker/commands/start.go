package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/internal/telemetry"
	"github.com/marmos91/dittobroker/pkg/admin"
	"github.com/marmos91/dittobroker/pkg/api"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/controlplane/store"
	"github.com/marmos91/dittobroker/pkg/credentials"
	"github.com/marmos91/dittobroker/pkg/metrics"
	"github.com/marmos91/dittobroker/pkg/pool"
	"github.com/marmos91/dittobroker/pkg/scheduler"
	"github.com/marmos91/dittobroker/pkg/validator"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the broker",
	Long: `Start the broker in the foreground with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dbroker/config.yaml.

Examples:
  # Start with the default config
  dbroker start

  # Start with a custom config file
  dbroker start --config /etc/dbroker/config.yaml

  # Start with environment variable overrides
  DBROKER_LOGGING_LEVEL=DEBUG dbroker start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "write the process ID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dbroker",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dbroker",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Configuration loaded", "source", configSource(cmdutil.Flags.ConfigFile),
		"level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	dir, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open principal directory: %w", err)
	}
	defer func() { _ = dir.Close() }()

	adminPassword, err := dir.EnsureAdminUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	if adminPassword != "" {
		logger.Info("Admin user created", "username", models.AdminUsername)
		fmt.Printf("\n*** IMPORTANT: Admin user %q created with password: %s ***\n", models.AdminUsername, adminPassword)
		fmt.Println("Please save this password. It will not be shown again.")
		fmt.Println()
	}

	factory, err := backingRegistry().Build(cfg.Backing)
	if err != nil {
		return fmt.Errorf("failed to create resource factory: %w", err)
	}

	tasks := scheduler.NewGroup()
	defer tasks.StopAll()

	var (
		poolOpts   []pool.Option
		brokerOpts []broker.Option
	)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		poolOpts = append(poolOpts, pool.WithObserver(metrics.NewCheckoutMetrics()))
		brokerOpts = append(brokerOpts, broker.WithObserver(metrics.NewBrokerMetrics()))
	}

	mgr, err := pool.NewManager(cfg.Pool, factory, tasks, poolOpts...)
	if err != nil {
		return fmt.Errorf("failed to create pool manager: %w", err)
	}

	tokenStore, err := credentials.OpenStore(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	exchange, err := credentials.NewExchange(cfg.Credentials, tokenStore)
	if err != nil {
		_ = tokenStore.Close()
		return fmt.Errorf("failed to create credentials exchange: %w", err)
	}
	defer func() {
		if err := exchange.Stop(); err != nil {
			logger.Warn("Token store close error", logger.Err(err))
		}
	}()
	if err := tasks.Add(exchange.Sweeper()); err != nil {
		return err
	}

	validators, err := validator.Build(cfg.Validators, validator.Deps{Users: dir, Tokens: exchange})
	if err != nil {
		return fmt.Errorf("failed to build validators: %w", err)
	}

	shutdownRequested := make(chan struct{}, 1)
	var services []broker.AuxiliaryService
	if cfg.API.IsEnabled() {
		apiServer, err := api.NewServer(cfg.API, api.Deps{
			Directory: dir,
			Exchange:  exchange,
			OnShutdown: func() {
				select {
				case shutdownRequested <- struct{}{}:
				default:
				}
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		services = append(services, apiServer)
	}
	if cfg.Metrics.Enabled {
		services = append(services, metrics.NewServer(cfg.Metrics.Address, metrics.WithTokenExchange(exchange)))
	}

	brokerOpts = append(brokerOpts,
		broker.WithTasks(tasks),
		broker.WithValidators(validators...),
		broker.WithServices(services...))
	srv, err := broker.New(cfg.Broker, mgr, brokerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}

	view := admin.NewView(srv, admin.WithExchange(exchange), admin.WithIntervalStore(dir))
	if err := view.RestoreIntervals(ctx); err != nil {
		logger.Warn("Failed to restore scheduler intervals", logger.Err(err))
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	exchange.Start()
	if err := srv.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Broker is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-shutdownRequested:
		logger.Info("Shutdown requested through the admin API")
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Broker.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Broker shutdown error", logger.Err(err))
		return err
	}
	logger.Info("Broker stopped gracefully")
	return nil
}
