package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/config"
	"github.com/JakeFAU/site-harvester/internal/report"
)

var errNoManifest = errors.New("no manifest found; nothing has been harvested yet")

func newManifestCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Show the checkpointed state of the current run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openCheckpoint(cmd.Context(), app.Config, app.Logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					app.Logger.Warn("close checkpoint store", zap.Error(cerr))
				}
			}()

			m, ok, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load manifest: %w", err)
			}
			if !ok {
				return errNoManifest
			}
			return printManifest(cmd.OutOrStdout(), app.Config, m, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw manifest instead of a summary")
	return cmd
}

func printManifest(w io.Writer, cfg config.Config, m checkpoint.Manifest, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	state := "IN_PROGRESS"
	if m.Done {
		state = "DONE"
	}
	return report.Write(w, report.Summary{
		RunID:          m.RunID,
		StartURL:       m.StartURL,
		JobID:          m.JobID,
		CrawlBackend:   m.CrawlBackend,
		IntelBackend:   m.IntelBackend,
		State:          state,
		FinishedAt:     m.UpdatedAt,
		PagesProcessed: m.PagesProcessed,
		FilesTotal:     len(m.Files),
		Categories:     m.CategoryPool,
		CategoryCap:    cfg.Vocab.CategoryCap,
		Tags:           m.TagPool,
		TagCap:         cfg.Vocab.TagCap,
		PendingCursor:  m.Cursor(),
		Done:           m.Done,
	})
}
