package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/oniongen/internal/config"
	"github.com/nao1215/oniongen/internal/hsdir"
	"github.com/nao1215/oniongen/internal/tor"
)

// NewProbeCmd creates the probe command.
func NewProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <dir|address>...",
		Short: "Check through Tor whether onion addresses are already published",
		Long: `Probe connects to each address through Tor and reports whether a hidden
service answers. Arguments may be addresses or hidden service directories
written by generate; for a directory the hostname file is read.

A freshly generated address should be unreachable. If it is published,
someone is already serving it with the same key.

By default, probe starts an embedded Tor daemon, which takes 1-3 minutes
to bootstrap. Use --external-tor to use an existing Tor proxy instead.

Examples:
  # Probe a generated directory
  oniongen probe ~/.local/share/oniongen/keys/torabc...

  # Probe port 443 through the Tor Browser proxy
  oniongen probe -e 127.0.0.1:9150 -p 443 torabc....onion`,
		Args: cobra.MinimumNArgs(1),
		RunE: runProbeCmd,
	}

	cmd.Flags().StringP("external-tor", "e", "",
		"Use external Tor proxy at specified address (e.g., 127.0.0.1:9150)")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Connection timeout for each address")
	cmd.Flags().IntP("port", "p", config.DefaultProbePort,
		"Hidden service port to connect to")
	cmd.Flags().Int("concurrency", config.DefaultProbeConcurrency,
		"Number of addresses probed at once")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .oniongen in current or home directory)")

	return cmd
}

// runProbeCmd executes the probe command.
func runProbeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildProbeConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	targets, err := resolveTargets(args)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	client, cleanup, err := connectTor(ctx, cfg, logger, out)
	if err != nil {
		return err
	}
	defer cleanup()

	return runProbe(ctx, client, cfg, targets, logger, out)
}

// buildProbeConfig creates a Config from defaults, the configuration file
// and the flags the user set.
func buildProbeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := loadConfigFile(cmd, cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	var err error

	cfg.Verbose = getVerboseFlag(cmd)

	if flags.Changed("external-tor") {
		externalTor, err := flags.GetString("external-tor")
		if err != nil {
			return nil, err
		}
		cfg.UseExternalTor = externalTor != ""
		if externalTor != "" {
			cfg.TorProxyAddress = externalTor
		}
	}
	if flags.Changed("tor-timeout") {
		if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("port") {
		if cfg.ProbePort, err = flags.GetInt("port"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.ProbeConcurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// resolveTargets turns arguments into hostnames. A directory argument is
// read as a hidden service directory; anything else is taken as an address.
func resolveTargets(args []string) ([]string, error) {
	targets := make([]string, 0, len(args))
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			targets = append(targets, arg)
			continue
		}

		hostname, err := hsdir.ReadHostname(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read hidden service directory %s: %w", arg, err)
		}
		targets = append(targets, hostname)
	}
	return targets, nil
}

// connectTor returns a checked Tor client and a cleanup function.
func connectTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*tor.Client, func(), error) {
	if cfg.UseExternalTor {
		client, err := tor.NewClient(cfg.TorProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, nil, fmt.Errorf("tor proxy check failed: %s (make sure Tor is running at %s): %w",
				status, cfg.TorProxyAddress, status.Error())
		}
		logger.Info("Tor proxy connection verified", "address", cfg.TorProxyAddress)
		return client, func() {}, nil
	}

	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	cleanup := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embeddedTor.SocksAddr(),
		"controlAddr", embeddedTor.ControlAddr(),
	)

	client, err := embeddedTor.NewClient(cfg.Timeout)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}
	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		cleanup()
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	return client, cleanup, nil
}

// runProbe probes all targets and prints one line per address.
func runProbe(ctx context.Context, d tor.Dialer, cfg *config.Config, targets []string, logger *slog.Logger, out io.Writer) error {
	prober := tor.NewBatchProber(d, cfg.ProbePort,
		tor.WithConcurrency(cfg.ProbeConcurrency),
		tor.WithBatchLogger(logger),
	)

	var mu sync.Mutex
	results := make([]*tor.ProbeResult, len(targets))
	err := prober.ProbeAll(ctx, targets, func(r *tor.ProbeResult, i int) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
	})
	if err != nil {
		return err
	}

	return writeProbeResults(out, results)
}

// writeProbeResults prints the results in input order.
func writeProbeResults(w io.Writer, results []*tor.ProbeResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HOSTNAME\tPORT\tSTATUS\tLATENCY")

	published := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Status == tor.ProbePublished {
			published++
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Hostname, r.Port, r.Status, r.Latency.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if published > 0 {
		_, err := fmt.Fprintf(w, "\n%d address(es) already published: a service with the same key is online.\n", published)
		return err
	}
	return nil
}
