package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/areas"
	"github.com/plotwise/landmatch/internal/ingest"
	"github.com/plotwise/landmatch/internal/model"
)

var (
	importXLSXPath string
	importSheet    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import plots from an XLSX export into the cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, skipped, err := ingest.ParsePlots(importXLSXPath, areas.Default(), ingest.Options{
			SheetName: importSheet,
		})
		if err != nil {
			return eris.Wrap(err, "import xlsx")
		}

		now := time.Now().UTC()
		entries := make([]model.CacheEntry, 0, len(records))
		for _, rec := range records {
			entries = append(entries, model.CacheEntry{
				Record:             rec,
				LastVerified:       now,
				VerificationSource: model.VerifyManualImport,
			})
		}

		written, err := st.BulkImport(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "bulk import")
		}

		zap.L().Info("import complete",
			zap.Int("written", written),
			zap.Int("skipped", skipped),
			zap.String("xlsx", importXLSXPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to XLSX file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (default first sheet)")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}
