package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"propdesk/internal/core/domain"
	"propdesk/internal/portal"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var proposalLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "schedule", Short: "Respond to a scheduling link"}
	cmd.AddCommand(scheduleShowCmd())
	cmd.AddCommand(scheduleAcceptCmd())
	cmd.AddCommand(scheduleProposeCmd())
	return cmd
}

func scheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Show the job and the tenant's preferred days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNegotiator(cmd.Context(), args[0], func(ctx context.Context, n *portal.Negotiator) error {
				snap := n.Snapshot()
				if viper.GetBool("json") {
					return printJSON(snap.View)
				}
				renderSchedule(snap.View, n.Slots())
				return nil
			})
		},
	}
}

func scheduleAcceptCmd() *cobra.Command {
	var day, slot, notes string
	cmd := &cobra.Command{
		Use:   "accept <token>",
		Short: "Accept one of the tenant's days at a half-hour slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNegotiator(cmd.Context(), args[0], func(ctx context.Context, n *portal.Negotiator) error {
				if err := n.ChooseAccept(); err != nil {
					return err
				}
				if err := n.SelectDay(day); err != nil {
					return err
				}
				if err := n.SelectTime(slot); err != nil {
					return err
				}
				if err := n.SetNotes(notes); err != nil {
					return err
				}
				return submitDecision(ctx, n)
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "tenant day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&slot, "time", "", "slot start (HH:MM, 08:00-17:30)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the property manager")
	_ = cmd.MarkFlagRequired("day")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func scheduleProposeCmd() *cobra.Command {
	var at, notes string
	cmd := &cobra.Command{
		Use:   "propose <token>",
		Short: "Propose a different time to the tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := location()
			if err != nil {
				return err
			}
			proposed, err := parseProposal(at, loc)
			if err != nil {
				return err
			}
			return withNegotiator(cmd.Context(), args[0], func(ctx context.Context, n *portal.Negotiator) error {
				if err := n.ChooseProposal(); err != nil {
					return err
				}
				if err := n.SetProposed(proposed); err != nil {
					return err
				}
				if err := n.SetNotes(notes); err != nil {
					return err
				}
				return submitDecision(ctx, n)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "proposed date and time (2006-01-02T15:04 or RFC 3339)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the property manager")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func withNegotiator(ctx context.Context, token string, fn func(context.Context, *portal.Negotiator) error) error {
	loc, err := location()
	if err != nil {
		return err
	}
	n := portal.NewNegotiator(newClient(), token, portal.NegotiatorOptions{Location: loc})
	defer n.Close()

	if err := n.Load(ctx); err != nil {
		return err
	}
	return fn(ctx, n)
}

func submitDecision(ctx context.Context, n *portal.Negotiator) error {
	ack, err := n.Submit(ctx)
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(ack)
	}

	loc, _ := location()
	switch {
	case ack.AppointmentAt != nil:
		fmt.Printf("Appointment confirmed for %s (status %s)\n", ack.AppointmentAt.In(loc).Format("Mon 2 Jan 2006 15:04 MST"), ack.Status)
	case ack.ProposedAt != nil:
		fmt.Printf("Proposed %s to the tenant (status %s)\n", ack.ProposedAt.In(loc).Format("Mon 2 Jan 2006 15:04 MST"), ack.Status)
	default:
		fmt.Printf("Response recorded (status %s)\n", ack.Status)
	}
	return nil
}

func renderSchedule(view *domain.ScheduleView, grid []string) {
	fmt.Printf("Request #%d: %s\n", view.RequestID, view.Title)
	fmt.Printf("Type: %s   Priority: %s\n", view.RequestType, view.Priority)
	if view.Description != "" {
		fmt.Println(view.Description)
	}
	fmt.Println()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Tenant preferred days")
	tw.AppendHeader(table.Row{"#", "Day", "Weekday"})
	if len(view.TenantPreferredSlots) == 0 {
		tw.AppendRow(table.Row{"-", "none offered, propose a time", ""})
	}
	for i, day := range view.TenantPreferredSlots {
		weekday := ""
		if d, err := time.Parse("2006-01-02", day); err == nil {
			weekday = d.Weekday().String()
		}
		tw.AppendRow(table.Row{i + 1, day, weekday})
	}
	tw.Render()

	fmt.Println()
	fmt.Println("Slots:", strings.Join(grid, " "))
	fmt.Printf("Link expires %s\n", view.ExpiresAt.Local().Format(time.RFC1123))
}

// parseProposal reads a proposed datetime; values without an offset are
// taken in loc.
func parseProposal(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range proposalLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.NewValidationError("proposed_datetime", "use the form 2006-01-02T15:04")
}
