package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kalambet/moviesync/internal/config"
	"github.com/kalambet/moviesync/internal/state"
)

// --- state ---

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the replication checkpoint",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st := openState(cfg, discardLogger())
		all, err := st.All(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printStatus(out, "file", "%s", cfg.ETL.StateStorage)
		if _, ok := all[cfg.ETL.StateKey]; !ok {
			printStatus(out, cfg.ETL.StateKey, "%s (default)", state.DefaultWatermark)
		}
		for _, k := range slices.Sorted(maps.Keys(all)) {
			printStatus(out, k, "%s", all[k])
		}
		return nil
	},
}

var resetKey string

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the watermark so the next run replicates everything again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		key := resetKey
		if key == "" {
			key = cfg.ETL.StateKey
		}

		st := openState(cfg, discardLogger())
		if err := st.Reset(cmd.Context(), key); err != nil {
			return fmt.Errorf("resetting %s: %w", key, err)
		}
		printSuccess("Reset %s to %s", key, state.DefaultWatermark)
		return nil
	},
}

func init() {
	stateResetCmd.Flags().StringVar(&resetKey, "key", "", "state key to reset (default: ETL_STATE_KEY)")
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
