package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ticketfight/appeal-service/internal/app"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/repository/postgres"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <intake-id>",
		Short: "Show an intake's pipeline state and mail tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, cfg.Database.URL, 2, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			in, err := postgres.NewIntakeRepo(db).Get(ctx, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Intake:\t%s\n", in.ID)
			fmt.Fprintf(w, "City:\t%s\n", in.CityID)
			fmt.Fprintf(w, "Status:\t%s\n", in.Status)
			fmt.Fprintf(w, "Stage attempts:\t%d\n", in.StageAttempts)
			if in.PaymentEventID != "" {
				fmt.Fprintf(w, "Payment event:\t%s\n", in.PaymentEventID)
			}
			if in.FailureKind != "" {
				fmt.Fprintf(w, "Failure:\t%s: %s\n", in.FailureKind, in.FailureReason)
			}
			fmt.Fprintf(w, "Updated:\t%s\n", in.UpdatedAt.Format("2006-01-02 15:04:05 MST"))

			mr, err := postgres.NewMailResultRepo(db).Get(ctx, in.ID)
			switch {
			case err == nil:
				fmt.Fprintf(w, "Letter:\t%s (%s)\n", mr.TrackingID, mr.Status)
				if mr.FailureReason != "" {
					fmt.Fprintf(w, "Carrier:\t%s\n", mr.FailureReason)
				}
			case !errors.Is(err, pipeline.ErrNoMailResult):
				return err
			}
			return w.Flush()
		},
	}
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <intake-id>...",
		Short: "Run the pipeline for intakes now, in this process",
		Long: `Advances each intake as far as it can go using the same wiring as the
server. Terminal intakes are left alone. Use after fixing whatever made a
stage fail transiently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			level := logger.WARN
			if verbose {
				level = logger.INFO
			}
			log := logger.New(os.Stderr, level, cfg.Logging.Redact())

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var failed []string
			for _, id := range args {
				if err := a.Orchestrator.Run(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					failed = append(failed, id)
					continue
				}
				in, err := a.Intakes.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, in.Status)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d intake(s) did not advance: %s", len(failed), strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolP("verbose", "v", false, "Log pipeline progress")
	return cmd
}

func verifyEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email <intake-id>",
		Short: "Mark an intake's email address as confirmed so notices are sent to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, cfg.Database.URL, 2, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.NewIntakeRepo(db).MarkEmailVerified(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: email verified\n", args[0])
			return nil
		},
	}
}
