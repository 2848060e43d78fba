package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-records/internal/weather"
)

func runRefresh(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := weather.WithTrigger(cmd.Context(), weather.TriggerCLI)
	if a.cfg.ReconcileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ReconcileTimeout)
		defer cancel()
	}

	sum, err := a.service.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
