package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/keystone/container"
	"github.com/zjrosen/keystone/engine"
	"github.com/zjrosen/keystone/internal/config"
	"github.com/zjrosen/keystone/scan"
)

var runCmd = &cobra.Command{
	Use:   "run [base-paths...]",
	Short: "Scan and run the bootstrap extension pipeline",
	Long: `Scan base paths for type manifests, register the matches plus the
infrastructure extension set, and run the full bootstrap pipeline over
them: registry-mutating extensions (with re-discovery), factory-mutating
extensions, then creation-interceptor installation.

Only catalog-resolvable types can be instantiated; a manifest declaring a
processor capability without a matching constructor fails the run.

Example:
  keystone run ./components`,
	RunE: runBootstrap,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	registered, err := scanOnce(ctx, provider.Tracer(), scanner, registry, basePaths)
	if err != nil {
		return err
	}
	printHolders(cmd, registered)

	eng := engine.New(registry, nil)
	orch := container.NewOrchestrator(eng, container.WithTracer(provider.Tracer()))
	if err := orch.Run(ctx, nil); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	cmd.Printf("bootstrap complete: run=%s definitions=%d interceptors=%d\n",
		orch.RunID(), len(registry.Names()), eng.InterceptorCount())
	return nil
}
