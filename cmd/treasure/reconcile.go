package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trashtotreasure/treasure/internal/claim"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reject pending requests left on items that are no longer available",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		closeLog, err := setupLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer closeLog()

		database, err := openDatabase(cmd.Context(), cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()

		svc := claim.New(database, claim.WithDirectClaimCascade(cfg.Claims.DirectClaimCascade))
		report, err := svc.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "items checked: %d, requests rejected: %d, failures: %d\n",
			report.Items, report.Rejected, report.Failed)
		if report.Failed > 0 {
			return fmt.Errorf("%d items could not be reconciled", report.Failed)
		}
		return nil
	},
}
