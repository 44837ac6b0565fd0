package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func recommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend [category]",
		Short: "Rank vendors for a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			includeRisky, _ := cmd.Flags().GetBool("include-high-risk")

			c, err := dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			recs, err := c.RecommendVendors(cmd.Context(), args[0], !includeRisky)
			if err != nil {
				return fmt.Errorf("failed to fetch recommendations: %w", err)
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No vendors supply %s\n", args[0])
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VENDOR\tNAME\tAVG PRICE\tRISK\tLEVEL\tTXNS")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\t%d\n",
					r.VendorID, r.VendorName, r.AvgUnitPrice/100, r.RiskScore, r.RiskLevel, r.TransactionCount)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Bool("include-high-risk", false, "Keep HIGH risk vendors in the ranking")

	return cmd
}
