package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/gpubox/pkg/engine"
	"github.com/cuemby/gpubox/pkg/lifecycle"
	"github.com/cuemby/gpubox/pkg/ports"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Report records and engine containers that no longer match",
	Long: `Compare every container record with every gpubox-managed engine
container, and every port claim with its record, then print the
mismatches as JSON. Nothing is changed unless --release-stale-claims is
given, which first frees the port claims of names that have neither a
record nor an engine container. Mismatches are reported, not treated as
failures: the exit status is non-zero only when the sweep itself could
not run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		alloc, err := ports.NewAllocator(store, cfg.Ports.Min, cfg.Ports.Max)
		if err != nil {
			return err
		}
		eng := engine.NewCLI(cfg.Docker, cfg.Timeouts, engine.NewCommandFactory())
		mgr := lifecycle.NewManager(store, eng, alloc, nil, lifecycle.OptionsFromConfig(cfg))

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.Default)
		defer cancel()
		if release, _ := cmd.Flags().GetBool("release-stale-claims"); release {
			released, err := mgr.ReleaseStaleClaims(ctx)
			if err != nil {
				return err
			}
			for _, name := range released {
				fmt.Fprintf(cmd.ErrOrStderr(), "released port claims of %s\n", name)
			}
		}

		report, err := mgr.Sweep(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	sweepCmd.Flags().Bool("release-stale-claims", false, "Free port claims held for names with no record and no engine container")
}
