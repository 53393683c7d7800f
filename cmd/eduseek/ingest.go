package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eduseek/eduseek/internal/services/ingest"
)

type ingestOptions struct {
	metadata   string
	root       string
	backendURL string
	courseID   string
	courseName string
	batchID    string
}

func newIngestCmd(configFiles *[]string) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload an already scraped batch to the ingestion backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, *configFiles, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.metadata, "metadata", "", "Batch metadata JSON file")
	f.StringVar(&opts.root, "root", "", "Directory entry paths are relative to (default: the metadata file's directory)")
	f.StringVar(&opts.backendURL, "backend-url", "", "Ingestion backend URL (overrides config)")
	f.StringVar(&opts.courseID, "course-id", "", "Course id sent with every file")
	f.StringVar(&opts.courseName, "course-name", "", "Course name sent with every file")
	f.StringVar(&opts.batchID, "batch-id", "", "Scrape batch id overriding each entry's")
	cmd.MarkFlagRequired("metadata")
	return cmd
}

func runIngest(cmd *cobra.Command, configFiles []string, opts *ingestOptions) error {
	config, logger, _, err := loadConfig(configFiles)
	if err != nil {
		return err
	}
	if opts.backendURL != "" {
		config.Ingest.BackendURL = opts.backendURL
	}

	uploader := ingest.NewUploader(config.Ingest, ingest.NewAuditLog(config.Ingest.AuditLog, logger), logger)

	if err := uploader.Ping(cmd.Context(), config.Ingest.BackendURL); err != nil {
		return err
	}

	counts, err := uploader.IngestBatch(cmd.Context(), ingest.BatchRequest{
		MetadataPath: opts.metadata,
		BackendURL:   config.Ingest.BackendURL,
		Root:         opts.root,
		CourseID:     opts.courseID,
		CourseName:   opts.courseName,
		BatchID:      opts.batchID,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Uploaded:   %d\n", counts.Uploaded)
	fmt.Fprintf(out, "Duplicates: %d\n", counts.Duplicate)
	fmt.Fprintf(out, "Failed:     %d\n", counts.Failed)
	fmt.Fprintf(out, "Missing:    %d\n", counts.Missing)

	if counts.Failed > 0 {
		return fmt.Errorf("%d uploads failed", counts.Failed)
	}
	return nil
}
