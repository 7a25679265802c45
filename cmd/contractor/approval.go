package main

import (
	"fmt"
	"os"

	"propdesk/internal/core/approval"
	"propdesk/internal/core/domain"
	"propdesk/internal/portal"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func thresholdsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds",
		Short: "Print the auto-approval threshold table",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := approval.Entries()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"version": approval.TableVersion, "entries": entries})
			}

			header := table.Row{"Service type"}
			for _, p := range approval.Priorities {
				header = append(header, p)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetTitle("Auto-approval thresholds " + approval.TableVersion)
			tw.AppendHeader(header)
			for _, t := range approval.ServiceTypes {
				row := table.Row{t}
				for _, p := range approval.Priorities {
					row = append(row, approval.Threshold(t, p).StringFixed(2))
				}
				tw.AppendRow(row)
			}
			tw.AppendFooter(table.Row{"other", fmt.Sprintf("fallback %s", approval.FallbackThreshold.StringFixed(2))})
			tw.Render()
			return nil
		},
	}
}

func previewCmd() *cobra.Command {
	var serviceType, priority, amount string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show whether an amount would be approved automatically",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := portal.ParseAmount(amount)
			if err != nil {
				return err
			}
			d := approval.Decide(value, domain.ServiceType(serviceType), domain.Priority(priority))
			if viper.GetBool("json") {
				return printJSON(d)
			}
			outcome := "needs manager review"
			if d.AutoApproved {
				outcome = "approved automatically"
			}
			fmt.Printf("%s for %s/%s: %s (threshold %s, table %s)\n",
				value.StringFixed(2), serviceType, priority, outcome, d.Threshold.StringFixed(2), d.TableVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceType, "type", "", "service type, e.g. plumbing")
	cmd.Flags().StringVar(&priority, "priority", "", "emergency, urgent or routine")
	cmd.Flags().StringVar(&amount, "amount", "", "invoice total")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
