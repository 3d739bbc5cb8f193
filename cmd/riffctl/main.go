package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "riffcity/internal/cli"
	"riffcity/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "riffctl",
		Short:        "Riffcity simulation ops CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newJobsCmd(&apiBase),
		newRunCmd(&apiBase),
		newDailyCmd(&apiBase),
		newRunsCmd(&apiBase),
		newAcceptOfferCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimSpace(*apiBase))
}

func triggeredBy() string {
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return "riffctl:" + u
	}
	return "riffctl"
}

func newJobsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List runnable jobs in daily order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListJobs(ctx)
			if err != nil {
				return err
			}
			printJobs(out)
			return nil
		},
	}
}

func newRunCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Trigger one job and wait for its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			out, err := newClient(apiBase).RunJob(ctx, args[0], triggeredBy(), uuid.NewString())
			if err != nil {
				return err
			}
			printRunResult(out)
			return nil
		},
	}
}

func newDailyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Trigger the full daily sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()
			out, err := newClient(apiBase).RunDaily(ctx, triggeredBy(), uuid.NewString())
			if err != nil {
				return err
			}
			printDailyResult(out)
			return nil
		},
	}
}

func newRunsCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent job runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).RecentRuns(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func newAcceptOfferCmd(apiBase *string) *cobra.Command {
	var profileID int64
	cmd := &cobra.Command{
		Use:   "accept-offer <offer-id>",
		Short: "Accept a sponsorship offer on behalf of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offerID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid offer id %q", args[0])
			}
			if profileID <= 0 {
				return fmt.Errorf("--profile is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).AcceptOffer(ctx, offerID, profileID)
			if err != nil {
				return err
			}
			printAccept(out)
			return nil
		},
	}
	cmd.Flags().Int64Var(&profileID, "profile", 0, "profile id accepting the offer")
	return cmd
}
