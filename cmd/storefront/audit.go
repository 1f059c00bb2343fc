package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/starkville/storefront/internal/infrastructure/config"
	"github.com/starkville/storefront/internal/repository/postgres"
)

// auditCmd reads the worker's audit log directly, so it needs the same
// database settings as the worker (STOREFRONT_DATABASE_* or a config file).
func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit [checkoutID]",
		Short: "Print the recorded audit trail of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := postgres.NewPool(cmd.Context(), &cfg.Database, "storefront-cli")
			if err != nil {
				return err
			}
			defer pool.Close()

			records, err := postgres.NewAuditRepository(pool).ListByCheckout(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printAuditTrail(os.Stdout, args[0], records)
		},
	}
}

func printAuditTrail(w io.Writer, checkoutID string, records []postgres.AuditRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintf(w, "No audit events for %s\n", checkoutID)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tSTATUS\tTYPE\tPHONE\tAMOUNT\tRESULT")
	for _, rec := range records {
		result := rec.ResultDesc
		if result == "" && rec.ResultCode != nil {
			result = "code " + strconv.Itoa(*rec.ResultCode)
		}
		if result == "" {
			result = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			rec.RecordedAt.UTC().Format(time.RFC3339), rec.Status, rec.OrderType, rec.Phone, rec.Amount, result)
	}
	return tw.Flush()
}
