package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripyard/internal/faucet"
	"github.com/zulandar/dripyard/internal/models"
)

func newFaucetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet",
		Short: "Faucet registry commands",
	}

	cmd.AddCommand(newFaucetListCmd())
	cmd.AddCommand(newFaucetAddCmd())
	cmd.AddCommand(newFaucetToggleCmd("enable", true))
	cmd.AddCommand(newFaucetToggleCmd("disable", false))
	return cmd
}

func newFaucetListCmd() *cobra.Command {
	var (
		configPath  string
		enabledOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered faucets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFaucetList(cmd, configPath, enabledOnly)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Dripyard config file")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only show enabled faucets")
	return cmd
}

func runFaucetList(cmd *cobra.Command, configPath string, enabledOnly bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	faucets, err := faucet.NewRegistry(gormDB).List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOOLDOWN\tENABLED\tURL")
	shown := 0
	for _, f := range faucets {
		if enabledOnly && !f.Enabled {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%dm\t%s\t%s\n", f.ID, f.Name, f.CooldownMinutes, yesNo(f.Enabled), f.URL)
		shown++
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d faucet(s)\n", shown)
	return nil
}

func newFaucetAddCmd() *cobra.Command {
	var (
		configPath string
		f          models.Faucet
		disabled   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new faucet",
		Long:  "Registers a faucet. The id is derived from the name: lowercased, whitespace runs become '-', other characters outside [a-z0-9-] are dropped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Enabled = !disabled
			return runFaucetAdd(cmd, configPath, f)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Dripyard config file")
	cmd.Flags().StringVar(&f.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&f.URL, "url", "", "faucet page URL (required)")
	cmd.Flags().StringVar(&f.ClaimSelector, "claim-selector", "", "CSS selector of the claim button (required)")
	cmd.Flags().StringVar(&f.CaptchaSelector, "captcha-selector", "", "CSS selector of the CAPTCHA widget")
	cmd.Flags().IntVar(&f.CooldownMinutes, "cooldown", faucet.DefaultCooldownMinutes, "minutes between claims")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "register without enabling")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")
	cmd.MarkFlagRequired("claim-selector")
	return cmd
}

func runFaucetAdd(cmd *cobra.Command, configPath string, f models.Faucet) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	created, err := faucet.NewRegistry(gormDB).Add(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added faucet %s (%s)\n", created.ID, created.URL)
	return nil
}

func newFaucetToggleCmd(verb string, enabled bool) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   verb + " <faucet-id>",
		Short: fmt.Sprintf("%s a faucet for new sessions", capitalize(verb)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			f, err := faucet.NewRegistry(gormDB).SetEnabled(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Faucet %s %sd\n", f.ID, verb)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Dripyard config file")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
