package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importer"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

var (
	importEntityType string
	importSource     string
	importMapping    string
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a CSV or XLSX file",
	Long: `Stages the file in a new batch, validates and resolves every row and commits
what needs no review. Rows waiting on review leave the batch in ready_to_merge.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, err := models.ParseEntityType(importEntityType)
		if err != nil {
			return err
		}
		var mapping map[string]string
		if importMapping != "" {
			if err := json.Unmarshal([]byte(importMapping), &mapping); err != nil {
				return fmt.Errorf("--mapping must be a JSON object of header to field: %w", err)
			}
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		return withApp(cmd, func(ctx context.Context, a *app) error {
			result, err := a.service.Import(ctx, importer.ImportRequest{
				EntityType: entityType,
				SourceName: importSource,
				FileName:   filepath.Base(args[0]),
				Body:       f,
				Mapping:    mapping,
			})
			if result != nil {
				if perr := printJSON(result); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

var previewEntityType string

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show how a file's columns would be mapped and filtered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, err := models.ParseEntityType(previewEntityType)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		return withApp(cmd, func(ctx context.Context, a *app) error {
			preview, err := a.service.Preview(ctx, entityType, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return printJSON(preview)
		})
	},
}

func init() {
	importCmd.Flags().StringVarP(&importEntityType, "entity-type", "e", "", "person, organization, role or news")
	importCmd.Flags().StringVarP(&importSource, "source", "s", "", "Name of the data source")
	importCmd.Flags().StringVar(&importMapping, "mapping", "", "Column mapping override as JSON, header to field")
	_ = importCmd.MarkFlagRequired("entity-type")
	_ = importCmd.MarkFlagRequired("source")

	previewCmd.Flags().StringVarP(&previewEntityType, "entity-type", "e", "", "person, organization, role or news")
	_ = previewCmd.MarkFlagRequired("entity-type")

	rootCmd.AddCommand(importCmd, previewCmd)
}
