package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"verifyflow.backend/internal/config"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/internal/infrastructure/queue"
	"verifyflow.backend/pkg/redis"
)

const commandTimeout = 10 * time.Second

// queueAdmin is the part of the job queue operators drive by hand
type queueAdmin interface {
	Stats(ctx context.Context) (*entities.QueueStats, error)
	ListFailed(ctx context.Context, limit int) ([]*entities.VerificationJob, error)
	Retry(ctx context.Context, jobID string) error
	Enqueue(ctx context.Context, documentID string, priority entities.JobPriority) (string, error)
}

var openQueue = func(ctx context.Context, cfg *config.Config) (queueAdmin, io.Closer, error) {
	client, err := redis.NewClient(ctx, cfg.Redis.URL, cfg.Redis.Password)
	if err != nil {
		return nil, nil, err
	}
	opts := queue.DefaultOptions()
	opts.MaxAttempts = cfg.Queue.MaxAttempts
	opts.BackoffBase = cfg.Queue.BackoffBase
	return queue.NewRedisQueue(client, opts), client, nil
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the verification job queue",
	}
	cmd.PersistentFlags().Bool("json", false, "Output as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show job counts per state",
		Args:  cobra.NoArgs,
		RunE: withQueue(func(ctx context.Context, cmd *cobra.Command, q queueAdmin, _ []string) error {
			stats, err := q.Stats(ctx)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ready\t%d\n", stats.Ready)
			fmt.Fprintf(w, "delayed\t%d\n", stats.Delayed)
			fmt.Fprintf(w, "active\t%d\n", stats.Active)
			fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
			fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
			return w.Flush()
		}),
	})

	failed := &cobra.Command{
		Use:   "failed",
		Short: "List dead-lettered jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: withQueue(func(ctx context.Context, cmd *cobra.Command, q queueAdmin, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			jobs, err := q.ListFailed(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no failed jobs")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tDOCUMENT\tATTEMPTS\tERROR")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", j.ID, j.DocumentID, j.Attempts, j.MaxAttempts, j.LastError)
			}
			return w.Flush()
		}),
	}
	failed.Flags().IntP("limit", "n", 20, "Maximum jobs")
	cmd.AddCommand(failed)

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <jobId>",
		Short: "Move a failed job back to the ready set",
		Args:  cobra.ExactArgs(1),
		RunE: withQueue(func(ctx context.Context, cmd *cobra.Command, q queueAdmin, args []string) error {
			if err := q.Retry(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		}),
	})

	enqueue := &cobra.Command{
		Use:   "enqueue <documentId>",
		Short: "Schedule verification of a document",
		Args:  cobra.ExactArgs(1),
		RunE: withQueue(func(ctx context.Context, cmd *cobra.Command, q queueAdmin, args []string) error {
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			priority, _ := cmd.Flags().GetString("priority")
			jobID, err := q.Enqueue(ctx, args[0], entities.ParseJobPriority(priority))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		}),
	}
	enqueue.Flags().StringP("priority", "p", string(entities.JobPriorityNormal), "high, normal or low")
	cmd.AddCommand(enqueue)

	return cmd
}

type queueRunFunc func(ctx context.Context, cmd *cobra.Command, q queueAdmin, args []string) error

func withQueue(run queueRunFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		q, closer, err := openQueue(ctx, loadCfg())
		if err != nil {
			return fmt.Errorf("connect to queue: %w", err)
		}
		defer closer.Close()
		return run(ctx, cmd, q, args)
	}
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
