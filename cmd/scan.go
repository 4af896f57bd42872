package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/keystone/container"
	"github.com/zjrosen/keystone/internal/config"
	"github.com/zjrosen/keystone/internal/log"
	"github.com/zjrosen/keystone/internal/pubsub"
	"github.com/zjrosen/keystone/internal/tracing"
	"github.com/zjrosen/keystone/internal/watcher"
	"github.com/zjrosen/keystone/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan [base-paths...]",
	Short: "Discover and register component definitions",
	Long: `Scan base paths for type manifests, evaluate the configured include and
exclude filters against each candidate, and register the matches.

Base paths given as arguments override scan.base_packages from the config
file. With --watch the scan re-runs whenever manifests under a base path
change.

Example:
  keystone scan ./components
  keystone scan --watch ./components ./plugins`,
	RunE: runScan,
}

var watchFlag bool

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&watchFlag, "watch", false,
		"re-scan when manifests change (overrides config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	basePaths, err := resolveBasePaths(args)
	if err != nil {
		return err
	}
	if len(basePaths) == 0 {
		return fmt.Errorf("no base paths: pass them as arguments or set scan.base_packages")
	}

	provider, err := newTraceProvider()
	if err != nil {
		return err
	}
	defer shutdownTracing(provider)

	registry := container.NewInMemoryRegistry()
	scanner, err := scan.NewScannerFromConfig(cfg.Scan, registry, scan.NewFSLoader(os.DirFS("/")), nil)
	if err != nil {
		return fmt.Errorf("configuring scanner: %w", err)
	}

	runOnce := func(ctx context.Context) error {
		registered, err := scanOnce(ctx, provider.Tracer(), scanner, registry, basePaths)
		if err != nil {
			return err
		}
		printHolders(cmd, registered)
		return nil
	}

	ctx := cmd.Context()
	if err := runOnce(ctx); err != nil {
		return err
	}

	if watchFlag || cfg.Watch {
		return watchAndRescan(ctx, cmd, basePaths, runOnce)
	}
	return nil
}

// scanOnce executes one scan pass over every base path and, when annotation
// config is enabled, registers the infrastructure extension set.
func scanOnce(ctx context.Context, tracer trace.Tracer, scanner *scan.Scanner, registry container.DefinitionRegistry, basePaths []string) ([]container.Holder, error) {
	_, span := tracer.Start(ctx, tracing.SpanScan, trace.WithAttributes(
		attribute.String(tracing.AttrBasePath, strings.Join(basePaths, ",")),
	))
	defer span.End()

	registered, err := scanner.Scan(basePaths...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scanning: %w", err)
	}
	if cfg.Scan.AnnotationConfig {
		infra, err := container.RegisterInfrastructureProcessors(registry)
		registered = append(registered, infra...)
		if err != nil {
			span.RecordError(err)
			return registered, fmt.Errorf("registering infrastructure extensions: %w", err)
		}
	}
	span.SetAttributes(attribute.Int(tracing.AttrRegisteredCount, len(registered)))
	return registered, nil
}

// watchAndRescan blocks, re-running the scan whenever manifests change,
// until interrupted. Watcher ticks flow through a broker so additional
// consumers can observe re-scan events.
func watchAndRescan(ctx context.Context, cmd *cobra.Command, basePaths []string, runOnce func(context.Context) error) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wcfg := watcher.DefaultConfig(basePathsOnDisk(basePaths)...)
	wcfg.Pattern = cfg.Scan.ResourcePattern
	if cfg.WatchDebounce > 0 {
		wcfg.DebounceDur = time.Duration(cfg.WatchDebounce) * time.Millisecond
	}
	w, err := watcher.New(wcfg)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	broker := pubsub.NewBroker[string]()
	defer broker.Close()
	events := broker.Subscribe(ctx)

	go func() {
		for base := range changes {
			broker.Publish(pubsub.UpdatedEvent, base)
		}
	}()

	cmd.Println("watching for manifest changes (ctrl-c to stop)")
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			log.Info(log.CatWatcher, "Manifests changed, re-scanning", "base", event.Payload)
			if err := runOnce(ctx); err != nil {
				log.ErrorErr(log.CatWatcher, "Re-scan failed", err)
				cmd.PrintErrf("re-scan failed: %v\n", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// resolveBasePaths merges CLI arguments with configured base packages and
// rebases them for the rooted filesystem the loader walks.
func resolveBasePaths(args []string) ([]string, error) {
	raw := args
	if len(raw) == 0 {
		raw = cfg.Scan.BasePaths()
	}
	var paths []string
	for _, p := range raw {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving base path %q: %w", p, err)
		}
		paths = append(paths, strings.TrimPrefix(abs, string(filepath.Separator)))
	}
	return paths, nil
}

// basePathsOnDisk restores rooted paths for components that talk to the OS
// directly rather than through the loader's filesystem.
func basePathsOnDisk(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(filepath.Separator) + p
	}
	return out
}

func printHolders(cmd *cobra.Command, holders []container.Holder) {
	cmd.Printf("registered %d definitions\n", len(holders))
	for _, h := range holders {
		cmd.Printf("  %-45s %-12s scope=%-10s role=%s\n",
			h.Name, h.Definition.Type, h.Definition.EffectiveScope(), h.Definition.Role)
	}
}

func newTraceProvider() (*tracing.Provider, error) {
	tcfg := cfg.Tracing
	if tcfg.Enabled && tcfg.Exporter == "file" && tcfg.FilePath == "" {
		tcfg.FilePath = config.DefaultTracesFilePath()
	}
	provider, err := tracing.NewProvider(tcfg)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	return provider, nil
}

func shutdownTracing(p *tracing.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatTrace, "Tracing shutdown failed", err)
	}
}
