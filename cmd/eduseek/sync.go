package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/eduseek/eduseek/internal/browser"
	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/services/auth"
	"github.com/eduseek/eduseek/internal/services/crawler"
	"github.com/eduseek/eduseek/internal/services/ingest"
	"github.com/eduseek/eduseek/internal/services/lmssync"
	"github.com/eduseek/eduseek/internal/services/materialize"
	"github.com/eduseek/eduseek/internal/services/status"
	"github.com/eduseek/eduseek/internal/services/twofa"
)

type syncOptions struct {
	username    string
	password    string
	statusFile  string
	resultsFile string
	interactive bool
	courseID    string
	courseName  string
	duplicates  string
	backendURL  string
}

func newSyncCmd(configFiles *[]string) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Log into the LMS, download one course and ingest it",
		Long: "Runs one sync job in the foreground. The job server spawns this command as its worker, " +
			"passing --status-file and --results-file for progress reporting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, *configFiles, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.username, "username", "", "LMS username (bare ids get the configured email domain)")
	f.StringVar(&opts.password, "password", "", "LMS password (prompted when omitted on a terminal)")
	f.StringVar(&opts.statusFile, "status-file", "", "Status JSON file rewritten at every stage")
	f.StringVar(&opts.resultsFile, "results-file", "", "Results JSON file written on completion")
	f.BoolVar(&opts.interactive, "interactive", false, "Prompt for missing credentials and choose the course from a list")
	f.StringVar(&opts.courseID, "course-id", "", "Course to sync (default: first discovered course)")
	f.StringVar(&opts.courseName, "course-name", "", "Display name for --course-id")
	f.StringVar(&opts.duplicates, "duplicates", "", "Duplicate file strategy: rename, overwrite or skip")
	f.StringVar(&opts.backendURL, "backend-url", "", "Ingestion backend URL (overrides config)")
	return cmd
}

func runSync(cmd *cobra.Command, configFiles []string, opts *syncOptions) error {
	out := cmd.OutOrStdout()
	stdin := cmd.InOrStdin()
	in := bufio.NewReader(stdin)

	if opts.duplicates != "" {
		if _, err := materialize.ParseStrategy(opts.duplicates); err != nil {
			return err
		}
	}

	if err := promptCredentials(opts, stdin, in, out); err != nil {
		return err
	}
	if opts.username == "" || opts.password == "" {
		return errors.New("--username and --password are required")
	}

	config, logger, _, err := loadConfig(configFiles)
	if err != nil {
		return err
	}
	if opts.duplicates != "" {
		config.Scraper.DuplicateStrategy = opts.duplicates
	}
	if opts.backendURL != "" {
		config.Ingest.BackendURL = opts.backendURL
	}

	// Reuse the job id the supervisor wrote into the initial status file
	jobID := common.NewJobID()
	if opts.statusFile != "" {
		if st, err := status.ReadStatus(opts.statusFile); err == nil && st.JobID != "" {
			jobID = st.JobID
		}
	}

	scraper, err := crawler.NewService(config.LMS, config.Scraper, logger)
	if err != nil {
		return err
	}

	var selector lmssync.CourseSelector = lmssync.AutoSelector{CourseID: opts.courseID, CourseName: opts.courseName}
	if opts.interactive {
		selector = lmssync.NewInteractiveSelector(in, out)
	}

	detector := twofa.NewDetector(config.Login.DisplaySignTimeout.Duration, logger)
	runner := lmssync.NewRunner(lmssync.Dependencies{
		Launcher: browser.NewLauncher(config.Browser, logger),
		Auth:     auth.NewService(config.LMS, config.Login, detector, logger),
		Scraper:  scraper,
		Ingester: ingest.NewUploader(config.Ingest, ingest.NewAuditLog(config.Ingest.AuditLog, logger), logger),
		Selector: selector,
		Status:   status.NewWriter(jobID, opts.statusFile, opts.resultsFile, out, logger),
		Logger:   logger,
	})

	// SIGTERM from the supervisor cancels the run
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("job_id", jobID).
		Str("username", opts.username).
		Bool("interactive", opts.interactive).
		Msg("Starting sync worker")

	results, err := runner.Run(ctx, lmssync.Options{
		Credentials: auth.Credentials{Username: opts.username, Password: opts.password},
		BackendURL:  opts.backendURL,
	})
	if results != nil {
		fmt.Fprintf(out, "\nCourse:     %s (%s)\n", results.CourseName, results.CourseID)
		fmt.Fprintf(out, "Batch:      %s\n", results.BatchID)
		fmt.Fprintf(out, "Files:      %d\n", results.TotalFiles)
		fmt.Fprintf(out, "Uploaded:   %d\n", results.Uploaded)
		fmt.Fprintf(out, "Duplicates: %d\n", results.Duplicates)
		fmt.Fprintf(out, "Failed:     %d\n", results.Failed)
		fmt.Fprintf(out, "Missing:    %d\n", results.Missing)
	}
	return err
}

// promptCredentials fills missing credentials from the terminal. Usernames
// are only prompted in interactive mode; passwords whenever stdin is a terminal.
func promptCredentials(opts *syncOptions, stdin io.Reader, in *bufio.Reader, out io.Writer) error {
	if opts.username == "" && opts.interactive {
		fmt.Fprint(out, "Username: ")
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read username: %w", err)
		}
		opts.username = strings.TrimSpace(line)
	}

	f, ok := stdin.(*os.File)
	if opts.password == "" && opts.username != "" && ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		opts.password = string(pw)
	}
	return nil
}
