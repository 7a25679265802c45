package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"propdesk/internal/core/domain"
	"propdesk/internal/portal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "contractor",
	Short: "PropDesk contractor portal CLI",
	Long: `Work a PropDesk service request from the terminal.

Links sent by the property manager carry a token; pass it to the schedule
and invoice commands. Settings come from flags, CONTRACTOR_* environment
variables or ~/.contractor.yaml.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CONTRACTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetConfigName(".contractor")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "warning: config file ignored:", err)
		}
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("api", "http://localhost:8080/api/v1", "portal API base URL")
	rootCmd.PersistentFlags().String("timezone", "", "IANA zone for appointment times (default local)")
	rootCmd.PersistentFlags().Duration("timeout", 15*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("api", rootCmd.PersistentFlags().Lookup("api"))
	_ = viper.BindPFlag("timezone", rootCmd.PersistentFlags().Lookup("timezone"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(thresholdsCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(loginCmd())
}

func newClient() *portal.Client {
	return portal.New(viper.GetString("api"), portal.WithTimeout(viper.GetDuration("timeout")))
}

func location() (*time.Location, error) {
	name := viper.GetString("timezone")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns flow errors into the sentence a contractor should see.
func describe(err error) string {
	if ve, ok := domain.AsValidation(err); ok {
		if ve.Field == "" {
			return ve.Message
		}
		return fmt.Sprintf("%s (%s)", ve.Message, ve.Field)
	}
	switch {
	case errors.Is(err, domain.ErrTokenInvalid):
		return "this link is invalid or has expired"
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return "this has already been submitted"
	case errors.Is(err, domain.ErrNotAvailable):
		return "invoicing is not open yet for this job"
	case errors.Is(err, domain.ErrUnauthorized):
		return "email or password is incorrect, or the session has ended"
	case errors.Is(err, domain.ErrTransient):
		return "the portal could not be reached, please try again"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	if msg := portal.ServerMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}
