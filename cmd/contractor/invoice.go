package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"propdesk/internal/core/domain"
	"propdesk/internal/portal"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func invoiceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invoice", Short: "Submit an invoice through an invoice link"}
	cmd.AddCommand(invoiceStatusCmd())
	cmd.AddCommand(invoiceSubmitCmd())
	return cmd
}

func invoiceStatusCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <token>",
		Short: "Show whether invoicing is open for the job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGate(cmd.Context(), args[0], wait, func(ctx context.Context, g *portal.Gate) error {
				snap := g.Snapshot()
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				renderGate(snap)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "keep checking until invoicing opens")
	return cmd
}

func invoiceSubmitCmd() *cobra.Command {
	var amount, description, notes, file string
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit <token>",
		Short: "Upload the invoice document and record the invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := readForm(amount, description, notes, file)
			if err != nil {
				return err
			}
			// nothing is sent for a form that cannot pass
			if err := form.Validate(); err != nil {
				return err
			}

			return withGate(cmd.Context(), args[0], wait, func(ctx context.Context, g *portal.Gate) error {
				receipt, err := g.Submit(ctx, form)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(receipt)
				}
				decision := g.Snapshot().Decision
				if decision != nil && decision.TableVersion != receipt.TableVersion {
					fmt.Fprintf(os.Stderr, "note: portal thresholds %s differ from server %s\n", decision.TableVersion, receipt.TableVersion)
				}
				renderReceipt(receipt)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "invoice total, e.g. 480.00")
	cmd.Flags().StringVar(&description, "description", "", "work performed")
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")
	cmd.Flags().StringVar(&file, "file", "", "invoice document (PDF, JPEG or PNG, up to 10 MB)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for invoicing to open before submitting")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readForm(amount, description, notes, path string) (*portal.InvoiceForm, error) {
	value, err := portal.ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read invoice file: %w", err)
	}
	if info.Size() > portal.MaxInvoiceBytes {
		return nil, domain.NewValidationError("file", "file is too large, the maximum size is 10 MB")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read invoice file: %w", err)
	}
	return &portal.InvoiceForm{
		Amount:      value,
		Description: description,
		Notes:       notes,
		FileName:    filepath.Base(path),
		File:        data,
	}, nil
}

// withGate loads the gate for token. With wait it blocks until the gate
// leaves locked(job_not_completed), printing countdown changes.
func withGate(ctx context.Context, token string, wait bool, fn func(context.Context, *portal.Gate) error) error {
	changed := make(chan portal.GateSnapshot, 1)
	g := portal.NewGate(newClient(), token, portal.GateOptions{
		OnChange: func(s portal.GateSnapshot) {
			select {
			case changed <- s:
			default:
				select {
				case <-changed:
				default:
				}
				changed <- s
			}
		},
	})
	defer g.Close()

	if err := g.Load(ctx); err != nil {
		return err
	}

	last := ""
	for wait && waiting(g.Snapshot()) {
		snap := g.Snapshot()
		if line := fmt.Sprintf("Invoicing opens in %s. %s", snap.Countdown, snap.Message); line != last && !viper.GetBool("json") {
			fmt.Println(line)
			last = line
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
	return fn(ctx, g)
}

func waiting(s portal.GateSnapshot) bool {
	return s.State == portal.GateLocked && s.Reason == domain.LockJobNotCompleted
}

func renderGate(s portal.GateSnapshot) {
	if s.View != nil {
		fmt.Printf("Request #%d: %s (%s, %s)\n", s.View.RequestID, s.View.Title, s.View.RequestType, s.View.Priority)
	}
	switch {
	case s.State == portal.GateOpen:
		fmt.Println("Invoicing is open.")
	case s.Reason == domain.LockAlreadySubmitted:
		fmt.Println("An invoice has already been submitted for this job.")
	case s.Reason == domain.LockJobNotCompleted && s.AvailableAfter != nil:
		fmt.Printf("Invoicing opens in %s (after %s).\n", s.Countdown, s.AvailableAfter.Local().Format("Mon 2 Jan 15:04"))
	default:
		fmt.Printf("Invoicing is not available: %s\n", s.Message)
	}
}

func renderReceipt(r *domain.InvoiceReceipt) {
	outcome := "Sent for manager review"
	if r.AutoApproved {
		outcome = "Approved automatically"
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(outcome)
	tw.AppendRows([]table.Row{
		{"Invoice", r.InvoiceID},
		{"Request", r.RequestID},
		{"Amount", r.Amount.StringFixed(2)},
		{"Threshold", r.Threshold.StringFixed(2)},
		{"Status", r.Status},
		{"Table version", r.TableVersion},
	})
	tw.Render()
}
