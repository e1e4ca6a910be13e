// Command datacenterd is the orchestrator. It validates the configuration,
// spawns one source-server subprocess per enabled data source, and serves a
// read-only status API over the resulting sessions until it is signalled.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/datacenter"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
	"github.com/datastack-labs/mcp-datacenter/pkg/statusapi"
)

func main() {
	var (
		configPath string
		listenAddr string
		serverBin  string
		checkOnly  bool
	)

	rootCmd := &cobra.Command{
		Use:   "datacenterd",
		Short: "Run the data center orchestrator",
		Long: `datacenterd connects every enabled data source by spawning a
source-server subprocess for each, then serves status endpoints over HTTP.

With --check it connects, prints each source's health, resources and tools,
and exits.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, listenAddr, serverBin, checkOnly)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "datacenter.yaml", "configuration file")
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8080", "status API listen address")
	rootCmd.Flags().StringVar(&serverBin, "source-server", "source-server", "path to the source-server binary")
	rootCmd.Flags().BoolVar(&checkOnly, "check", false, "connect, print health and capabilities, then exit")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, listenAddr, serverBin string, checkOnly bool) error {
	log := logging.New("datacenterd")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error("invalid configuration", logging.Fields{"error": e.Error()})
		}
		return fmt.Errorf("configuration failed validation with %d error(s)", len(errs))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := datacenter.NewManager(nil, log.WithComponent("manager"))
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn("shutdown", logging.Fields{"error": err.Error()})
		}
	}()

	connected := mgr.ConnectDataSources(ctx, cfg.EnabledDataSources(), func(ds config.DataSource) datacenter.LaunchSpec {
		return &datacenter.StdioLaunchSpec{
			Command: serverBin,
			Args:    []string{"--config", configPath, "--datasource", ds.Name},
		}
	})
	if len(connected) == 0 {
		return errors.New("no data sources connected")
	}

	if checkOnly {
		return printStatus(ctx, mgr)
	}

	api := statusapi.New(mgr, log.WithComponent("statusapi"))
	srv := &http.Server{Addr: listenAddr, Handler: api.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Info("status API listening", logging.Fields{"addr": listenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printStatus(ctx context.Context, mgr *datacenter.Manager) error {
	health := mgr.HealthCheck(ctx)
	resources := mgr.ListAllResources(ctx)
	tools := mgr.ListAllTools(ctx)

	names := mgr.Sources()
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, health[name])
		for _, r := range resources[name].Resources {
			fmt.Printf("  resource %s\n", r.URI)
		}
		for _, t := range tools[name].Tools {
			fmt.Printf("  tool %s\n", t.Name)
		}
	}
	return nil
}
