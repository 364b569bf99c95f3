package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp opens the pipeline for a one-shot command and closes it after fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, sync, err := bootstrap()
	if err != nil {
		return err
	}
	defer sync()

	ctx := cmd.Context()
	a := newApp(cfg, logger)
	if err := a.open(ctx); err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	return fn(ctx, a)
}
