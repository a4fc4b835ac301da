package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/ballast/pkg/client"
	"github.com/cuemby/ballast/pkg/types"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a plan to the agent",
	Long: `Submit a plan document for execution. The plan ID is the SHA-512 of
the plan file and is computed here before submission.

Examples:
  # Submit a plan
  ballast submit -f plan.json

  # Submit a stale plan anyway
  ballast submit -f plan.json --force`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "Plan file to submit (required)")
	submitCmd.Flags().Bool("force", false, "Skip the plan age check")
	_ = submitCmd.MarkFlagRequired("file")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	force, _ := cmd.Flags().GetBool("force")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read plan file: %v", err)
	}
	planText := string(data)

	plan, err := types.ParsePlan(planText)
	if err != nil {
		return fmt.Errorf("plan file does not parse: %v", err)
	}

	planID := types.PlanID(planText)
	c := client.NewClient(agentAddr(cmd))
	if err := c.SubmitPlan(planID, plan.Version, planText, force); err != nil {
		return fmt.Errorf("failed to submit plan: %v", err)
	}

	fmt.Printf("Plan submitted\n")
	fmt.Printf("  Plan ID: %s\n", planID)
	fmt.Printf("  Steps:   %d\n", len(plan.Steps))
	return nil
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the current plan status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(agentAddr(cmd))
		status, err := c.QueryWorkStatus()
		if err != nil {
			return fmt.Errorf("failed to query status: %v", err)
		}

		fmt.Printf("State:   %s\n", status.Result)
		if status.PlanID != "" {
			fmt.Printf("Plan ID: %s\n", status.PlanID)
		}
		for _, entry := range status.Entries {
			item := entry.WorkItem
			fmt.Printf("  %s -> %s\n", entry.SourcePath, entry.DestinationPath)
			fmt.Printf("    copied %d of %d bytes (%d blocks, %d errors)\n",
				item.BytesCopied, item.BytesToCopy, item.BlocksCopied, item.ErrorCount)
			if item.ErrMsg != "" {
				fmt.Printf("    abandoned: %s\n", item.ErrMsg)
			}
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <plan-id>",
	Short: "Cancel the current plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(agentAddr(cmd))
		if err := c.CancelPlan(args[0]); err != nil {
			return fmt.Errorf("failed to cancel plan: %v", err)
		}
		fmt.Println("Plan cancelled")
		return nil
	},
}

var volumesCmd = &cobra.Command{
	Use:   "volumes",
	Short: "List the node's volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(agentAddr(cmd))
		names, err := c.GetVolumeNames()
		if err != nil {
			return fmt.Errorf("failed to list volumes: %v", err)
		}
		for id, path := range names {
			fmt.Printf("%s  %s\n", id, path)
		}
		return nil
	},
}

var bandwidthCmd = &cobra.Command{
	Use:   "bandwidth",
	Short: "Show the node-default bandwidth ceiling",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(agentAddr(cmd))
		bw, err := c.GetBandwidth()
		if err != nil {
			return fmt.Errorf("failed to read bandwidth: %v", err)
		}
		fmt.Printf("%d MB/s\n", bw)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent balancer events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(agentAddr(cmd))
		recent, err := c.GetEvents()
		if err != nil {
			return fmt.Errorf("failed to read events: %v", err)
		}
		for _, event := range recent {
			line := fmt.Sprintf("%s  %-16s", event.Timestamp.Format(time.RFC3339), event.Type)
			if event.Pair != nil {
				line += fmt.Sprintf("  %s -> %s", event.Pair.Source, event.Pair.Dest)
			}
			if event.Message != "" {
				line += "  " + event.Message
			}
			fmt.Println(line)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(agentAddr(cmd))
		records, err := c.GetHistory()
		if err != nil {
			return fmt.Errorf("failed to read history: %v", err)
		}
		for _, record := range records {
			fmt.Printf("%s  %-20s  submitted %s\n",
				record.PlanID[:16], record.Result,
				record.SubmittedAt.Format(time.RFC3339))
		}
		return nil
	},
}
