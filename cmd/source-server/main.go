// Command source-server serves one configured data source over stdio. The
// orchestrator spawns one of these per source; it can also be run directly
// for debugging a single backend.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datastack-labs/mcp-datacenter/pkg/adapter"
	"github.com/datastack-labs/mcp-datacenter/pkg/backend"
	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

func main() {
	var (
		configPath string
		sourceName string
	)

	rootCmd := &cobra.Command{
		Use:   "source-server",
		Short: "Serve one data source over stdio",
		Long: `source-server loads the data center configuration, builds the backend
for one named data source, and serves it over stdio until the peer
closes the stream or the process is signalled.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, configPath, sourceName)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "datacenter.yaml", "configuration file")
	rootCmd.Flags().StringVarP(&sourceName, "datasource", "d", "", "data source name to serve")
	_ = rootCmd.MarkFlagRequired("datasource")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, configPath, sourceName string) error {
	log := logging.NewWithWriter("source-server", os.Stderr)

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

	ds, ok := cfg.DataSource(sourceName)
	if !ok {
		return fmt.Errorf("unknown data source %q", sourceName)
	}
	if !ds.Enabled {
		return fmt.Errorf("data source %q is disabled", sourceName)
	}

	b, err := backend.NewFactory(log).New(ds)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return adapter.New(sourceName, b, log.WithComponent("adapter")).Run(ctx)
}
