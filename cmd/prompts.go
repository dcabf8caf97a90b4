package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jglaspey/supplement-cli/internal/prompts"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage per-step prompt configuration",
	Long:  "Every LLM call resolves its prompt, model tier, and sampling settings per step; stored overrides take precedence over compiled-in defaults.",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective prompt configs per step",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		resolver := prompts.NewResolver(st)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "STEP\tMODEL\tMAX_TOKENS\tSOURCE")
		for _, step := range prompts.Steps() {
			cfg, err := resolver.Get(ctx, step)
			if err != nil {
				return eris.Wrapf(err, "resolve %s", step)
			}
			source := "default"
			if ov, _ := st.GetPromptConfig(ctx, step); ov != nil {
				source = "override"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", step, cfg.Model, cfg.MaxTokens, source)
		}
		return w.Flush()
	},
}

var promptsSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Seed prompt overrides into the store from a yaml file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		overrides, err := prompts.ParseSeedFile(data)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, ov := range overrides {
			if err := st.SetPromptConfig(ctx, ov); err != nil {
				return eris.Wrapf(err, "seed %s", ov.Step)
			}
		}

		zap.L().Info("prompt overrides seeded", zap.Int("count", len(overrides)))
		return nil
	},
}

func init() {
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsSeedCmd)
	rootCmd.AddCommand(promptsCmd)
}
