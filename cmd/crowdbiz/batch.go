package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importer"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect and drive import batches",
}

var (
	listStatus string
	listLimit  int
	listOffset int
)

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batches, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			batches, err := a.service.ListBatches(ctx, models.BatchFilter{
				Status: models.BatchStatus(listStatus),
				Limit:  listLimit,
				Offset: listOffset,
			})
			if err != nil {
				return err
			}
			return printJSON(batches)
		})
	},
}

var batchShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show one batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			batch, err := a.service.GetBatch(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(batch)
		})
	},
}

var (
	recordsStatus   string
	recordsDecision string
	recordsLimit    int
	recordsOffset   int
)

var batchRecordsCmd = &cobra.Command{
	Use:   "records <batch-id>",
	Short: "List the staged records of a batch in file order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := models.StagingFilter{
			ValidationStatus: models.ValidationStatus(recordsStatus),
			Limit:            recordsLimit,
			Offset:           recordsOffset,
		}
		if recordsDecision != "" {
			decision, ok := models.ParseMergeDecision(recordsDecision)
			if !ok {
				return fmt.Errorf("unknown merge decision %q", recordsDecision)
			}
			filter.MergeDecision = decision
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			records, err := a.service.ListRecords(ctx, args[0], filter)
			if err != nil {
				return err
			}
			return printJSON(records)
		})
	},
}

var (
	reviewDecision  string
	reviewCandidate string
	reviewOperator  string
)

var batchReviewCmd = &cobra.Command{
	Use:   "review <batch-id> <record-id>",
	Short: "Record a review decision on a staged record",
	Long: `Sets the decision of a record waiting on review to update, new or skip.
The record is written by the next commit of the batch.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision, ok := models.ParseMergeDecision(reviewDecision)
		if !ok {
			return fmt.Errorf("unknown decision %q", reviewDecision)
		}
		req := importer.ReviewDecision{
			BatchID:  args[0],
			RecordID: args[1],
			Decision: decision,
			Operator: reviewOperator,
		}
		if reviewCandidate != "" {
			req.MergeCandidateID = &reviewCandidate
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			rec, err := a.service.ResolveReview(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(rec)
		})
	},
}

var batchCommitCmd = &cobra.Command{
	Use:   "commit <batch-id>",
	Short: "Commit the decided records of a batch waiting on review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			result, err := a.service.Commit(ctx, args[0])
			if result != nil {
				if perr := printJSON(result); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

var recoverOperator string

var batchRecoverCmd = &cobra.Command{
	Use:   "recover [batch-id]",
	Short: "Fail batches abandoned in processing",
	Long: `Marks processing batches that made no progress for STALE_BATCH_AFTER (or
--older-than) as failed. Without a batch id every stale batch is recovered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, err := cmd.Flags().GetDuration("older-than")
		if err != nil {
			return err
		}
		req := importer.RecoverRequest{OlderThan: olderThan, Operator: recoverOperator}
		if len(args) == 1 {
			req.BatchID = args[0]
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			recovered, err := a.service.Recover(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(recovered)
		})
	},
}

var batchDeleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete a batch and its staged records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.service.DeleteBatch(ctx, args[0])
		})
	},
}

func init() {
	batchListCmd.Flags().StringVar(&listStatus, "status", "", "Only batches in this status")
	batchListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum batches to list")
	batchListCmd.Flags().IntVar(&listOffset, "offset", 0, "Batches to skip")

	batchRecordsCmd.Flags().StringVar(&recordsStatus, "validation-status", "", "pending, valid, invalid or merged")
	batchRecordsCmd.Flags().StringVar(&recordsDecision, "merge-decision", "", "update, new, skip or manual_review")
	batchRecordsCmd.Flags().IntVar(&recordsLimit, "limit", 0, "Maximum records to list")
	batchRecordsCmd.Flags().IntVar(&recordsOffset, "offset", 0, "Records to skip")

	batchReviewCmd.Flags().StringVarP(&reviewDecision, "decision", "d", "", "update, new or skip")
	batchReviewCmd.Flags().StringVar(&reviewCandidate, "candidate", "", "Production id to update, defaults to the suggested candidate")
	batchReviewCmd.Flags().StringVar(&reviewOperator, "operator", "", "Who made the decision")
	_ = batchReviewCmd.MarkFlagRequired("decision")

	batchRecoverCmd.Flags().Duration("older-than", 0, "Override STALE_BATCH_AFTER")
	batchRecoverCmd.Flags().StringVar(&recoverOperator, "operator", "", "Who ran the recovery")

	batchCmd.AddCommand(batchListCmd, batchShowCmd, batchRecordsCmd, batchReviewCmd, batchCommitCmd, batchRecoverCmd, batchDeleteCmd)
	rootCmd.AddCommand(batchCmd)
}
