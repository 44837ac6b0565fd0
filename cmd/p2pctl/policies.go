package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-p2p-workflow/internal/config"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
	"github.com/pesio-ai/be-p2p-workflow/internal/service"
)

func policiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect approval policy files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a policy file and print its brackets",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidatePolicies,
	})
	return cmd
}

func runValidatePolicies(cmd *cobra.Command, args []string) error {
	file, err := config.LoadPolicyFile(args[0])
	if err != nil {
		return err
	}
	if _, err := service.NewApprovalResolver(file.Policies); err != nil {
		return fmt.Errorf("invalid policies: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tNAME\tMIN\tMAX\tAPPROVERS")
	for _, p := range file.Policies {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.Target, p.Name, dollars(p.MinAmount), upperBound(p), len(p.RequiredApprovers))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if file.Thresholds != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "custom analysis thresholds: yes")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d policies OK\n", len(file.Policies))
	return nil
}

func upperBound(p repository.ApprovalPolicy) string {
	if p.MaxAmount == nil {
		return "-"
	}
	return dollars(*p.MaxAmount)
}

func dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
