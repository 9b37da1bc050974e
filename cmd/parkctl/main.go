package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"smart_parkai/internal/config"
	"smart_parkai/internal/domain"
	"smart_parkai/internal/repository/postgresql"
	"smart_parkai/internal/service"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "parkctl",
		Short: "Smart ParkAI booking tools",
	}

	rootCmd.AddCommand(
		interpretCmd(),
		quoteCmd(),
		promoCmd(),
		migrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type intentFlags struct {
	minutes  int
	spot     string
	valet    bool
	promo    string
	location string
}

func (f *intentFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.minutes, "minutes", domain.DefaultDurationMinutes, "starting duration in minutes")
	cmd.Flags().StringVar(&f.spot, "spot", "", "starting spot preference (exit, ev, elevator)")
	cmd.Flags().BoolVar(&f.valet, "valet", false, "request valet service")
	cmd.Flags().StringVar(&f.promo, "promo", "", "promo code to apply")
	cmd.Flags().StringVar(&f.location, "location", string(domain.LocationCity), "location (city, mall, airport)")
}

func (f *intentFlags) intent() (domain.BookingIntent, error) {
	spot := domain.SpotPreference(f.spot)
	if !spot.Valid() {
		return domain.BookingIntent{}, fmt.Errorf("unknown spot preference %q", f.spot)
	}
	loc := domain.Location(f.location)
	if !loc.Valid() {
		return domain.BookingIntent{}, fmt.Errorf("unknown location %q", f.location)
	}
	intent := domain.NewBookingIntent().WithCustomDuration(f.minutes).WithLocation(loc)
	intent = intent.Apply(domain.IntentPatch{SpotPreference: &spot, ValetRequested: &f.valet})
	if f.promo != "" {
		if res := service.ValidatePromo(f.promo); res.Accepted {
			intent = intent.WithPromo(f.promo, true)
		} else {
			return domain.BookingIntent{}, fmt.Errorf("%w: %s", service.ErrPromoRejected, res.Message)
		}
	}
	return intent, nil
}

func interpretCmd() *cobra.Command {
	var flags intentFlags
	cmd := &cobra.Command{
		Use:   "interpret [utterance]",
		Short: "Interpret a spoken or typed command and show the resulting intent and quote",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := flags.intent()
			if err != nil {
				return err
			}
			result := service.Interpret(service.TextUtterance(strings.Join(args, " ")))
			if result.Understood {
				intent = intent.Apply(result.Patch)
			}
			quote, err := service.ComputeQuote(intent)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"result": result,
				"intent": intent,
				"quote":  quote,
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func quoteCmd() *cobra.Command {
	var flags intentFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := flags.intent()
			if err != nil {
				return err
			}
			quote, err := service.ComputeQuote(intent)
			if err != nil {
				return err
			}
			return printJSON(cmd, quote)
		},
	}
	flags.register(cmd)
	return cmd
}

func promoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promo [code]",
		Short: "Check a promo code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, service.ValidatePromo(args[0]))
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema using the server's DB_* settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := postgresql.NewDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgresql.Migrate(context.Background(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
