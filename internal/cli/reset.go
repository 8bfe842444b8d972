package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tornsidekick/sidekick/internal/daemon"
	"github.com/tornsidekick/sidekick/internal/infra/kvstore"
	"github.com/tornsidekick/sidekick/internal/infra/ledger"
)

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase all obligations and processed-payment history",
	Long: `Clear the entire ledger: every loan, debt, repayment record, and
the processed-payment set. This cannot be undone.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Fprint(os.Stdout, "This erases the entire ledger. Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Fprintln(os.Stdout, "Aborted.")
			return nil
		}
	}

	home, err := daemon.Home()
	if err != nil {
		return err
	}
	cfg, err := daemon.Load(daemon.ConfigPath(home))
	if err != nil {
		return err
	}

	store, err := kvstore.Open(cfg.DBPath(home))
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer store.Close()

	svc := ledger.New(store)
	svc.Load(cmd.Context())
	if err := svc.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}

	fmt.Fprintln(os.Stdout, "Ledger cleared.")
	return nil
}
