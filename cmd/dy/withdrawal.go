package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/withdrawal"
)

func newWithdrawalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdrawal",
		Short: "Withdrawal commands",
	}

	cmd.AddCommand(newWithdrawalListCmd())
	return cmd
}

func newWithdrawalListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List withdrawals, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithdrawalList(cmd, configPath, status)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Dripyard config file")
	cmd.Flags().StringVar(&status, "status", "", "only show withdrawals in this status")
	return cmd
}

func runWithdrawalList(cmd *cobra.Command, configPath, status string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	list, err := withdrawal.New(gormDB, withdrawal.Opts{}).List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAMOUNT (BTC)\tWALLET\tSOURCES\tCREATED")
	shown := 0
	for _, wd := range list {
		if status != "" && wd.Status != status {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			wd.ID, wd.Status, ledger.BTC(wd.AmountSats).StringFixed(8), wd.WalletAddress,
			strings.Join(withdrawal.SourcesOf(wd), ","), wd.CreatedAt.Format("2006-01-02 15:04"))
		shown++
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d withdrawal(s)\n", shown)
	return nil
}
