// Package lmssync runs one sync job: login, course discovery, archive scrape
// and ingestion, reporting each stage through a status writer.
package lmssync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/auth"
	"github.com/eduseek/eduseek/internal/services/crawler"
	"github.com/eduseek/eduseek/internal/services/ingest"
	"github.com/eduseek/eduseek/internal/services/status"
)

// Stage progress values
const (
	progressInitializing = 0
	progressLogin        = 10
	progressLoggedIn     = 20
	progressScraping     = 40
	progressProcessing   = 70
	progressIngesting    = 90
)

// ErrUploadsFailed is returned after a completed run in which some uploads failed
var ErrUploadsFailed = errors.New("one or more uploads failed")

// Authenticator logs into the LMS on a page
type Authenticator interface {
	Login(ctx context.Context, page interfaces.Page, creds auth.Credentials, onStatus auth.StatusFunc) (*auth.LoginResult, error)
	AwaitTwoFactorCompletion(ctx context.Context, page interfaces.Page, onStatus auth.StatusFunc) error
}

// CourseScraper discovers courses and downloads their content
type CourseScraper interface {
	DiscoverCourses(ctx context.Context, page interfaces.Page) ([]models.CourseRef, error)
	ScrapeCourse(ctx context.Context, page interfaces.Page, course models.CourseRef, batchID string) (*crawler.ScrapeResult, error)
}

// BatchIngester uploads a scraped batch
type BatchIngester interface {
	IngestBatch(ctx context.Context, req ingest.BatchRequest) (models.IngestionCounts, error)
}

// Dependencies wires a Runner
type Dependencies struct {
	Launcher interfaces.BrowserLauncher
	Auth     Authenticator
	Scraper  CourseScraper
	Ingester BatchIngester
	Selector CourseSelector
	Status   *status.Writer
	Logger   arbor.ILogger
}

// Runner executes the sync pipeline once. Stages run strictly in order.
type Runner struct {
	deps Dependencies
	now  func() time.Time
}

// NewRunner creates a runner
func NewRunner(deps Dependencies) *Runner {
	if deps.Selector == nil {
		deps.Selector = AutoSelector{}
	}
	return &Runner{deps: deps, now: time.Now}
}

// Options are per-run inputs
type Options struct {
	Credentials auth.Credentials
	BackendURL  string // Empty uses the ingester's configured backend
}

// Run executes the pipeline. Fatal errors are recorded in the status file
// and returned. A completed run with failed uploads returns its results
// together with ErrUploadsFailed.
func (r *Runner) Run(ctx context.Context, opts Options) (*models.SyncResults, error) {
	st := r.deps.Status
	logger := r.deps.Logger

	r.stage(models.SyncStepInitializing, progressInitializing, "Starting LMS sync...")

	results, err := r.run(ctx, opts)
	if err != nil {
		message := failureMessage(err)
		logger.Error().Err(err).Msg("Sync failed")
		if ferr := st.Fail(message); ferr != nil {
			logger.Warn().Err(ferr).Msg("Failed to write error status")
		}
		return nil, err
	}

	message := fmt.Sprintf("Sync complete! %d files uploaded, %d duplicates, %d failed", results.Uploaded, results.Duplicates, results.Failed)
	if err := st.Complete(*results, message); err != nil {
		logger.Warn().Err(err).Msg("Failed to write results")
	}

	if results.Failed > 0 {
		return results, ErrUploadsFailed
	}
	return results, nil
}

func (r *Runner) run(ctx context.Context, opts Options) (*models.SyncResults, error) {
	logger := r.deps.Logger

	if opts.Credentials.Username == "" || opts.Credentials.Password == "" {
		return nil, errors.New("username and password are required")
	}

	r.stage(models.SyncStepLogin, progressLogin, "Launching browser...")
	session, err := r.deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	var closeOnce sync.Once
	closeSession := func() {
		closeOnce.Do(func() {
			if err := session.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close browser session")
			}
		})
	}
	defer closeSession()

	page := session.Page()
	if err := r.login(ctx, page, opts.Credentials); err != nil {
		return nil, err
	}

	r.stage(models.SyncStepScraping, progressScraping, "Login successful, discovering courses...")
	courses, err := r.deps.Scraper.DiscoverCourses(ctx, page)
	if err != nil {
		if !errors.Is(err, crawler.ErrNoCourses) {
			return nil, err
		}
		logger.Warn().Err(err).Msg("No courses discovered")
	}

	course, err := r.deps.Selector.SelectCourse(ctx, courses)
	if err != nil {
		return nil, fmt.Errorf("course selection failed: %w", err)
	}

	batchID := common.NewBatchID(r.now())
	r.stage(models.SyncStepScraping, progressScraping, fmt.Sprintf("Scraping files from %s...", course.CourseName))
	logger.Info().Str("course_id", course.CourseID).Str("course_name", course.CourseName).Str("batch_id", batchID).Msg("Course selected")

	scraped, err := r.deps.Scraper.ScrapeCourse(ctx, page, course, batchID)
	if err != nil {
		return nil, err
	}
	closeSession()

	files := scraped.Files
	if files == nil {
		files = []models.ScrapedFileEntry{}
	}
	r.stage(models.SyncStepProcessing, progressProcessing, fmt.Sprintf("Processing %d scraped files...", len(files)))

	var counts models.IngestionCounts
	if scraped.CourseJSONPath != "" && len(files) > 0 {
		r.stage(models.SyncStepIngesting, progressIngesting, "Ingesting files into backend...")
		counts, err = r.deps.Ingester.IngestBatch(ctx, ingest.BatchRequest{
			MetadataPath: scraped.CourseJSONPath,
			BackendURL:   opts.BackendURL,
			Root:         scraped.BatchRoot,
			CourseID:     course.CourseID,
			CourseName:   course.CourseName,
			BatchID:      batchID,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error().Err(err).Msg("Ingestion failed")
			counts = models.IngestionCounts{Failed: len(files)}
		}
	}

	return &models.SyncResults{
		Status:     "success",
		Files:      files,
		Uploaded:   counts.Uploaded,
		Duplicates: counts.Duplicate,
		Failed:     counts.Failed,
		Missing:    counts.Missing,
		CourseID:   course.CourseID,
		CourseName: course.CourseName,
		BatchID:    batchID,
		TotalFiles: len(files),
	}, nil
}

func (r *Runner) login(ctx context.Context, page interfaces.Page, creds auth.Credentials) error {
	st := r.deps.Status

	onStatus := func(message string, challenge *models.TwoFactorChallenge) {
		if challenge != nil {
			if err := st.SetTwoFactor(challenge.Code, message); err != nil {
				r.deps.Logger.Warn().Err(err).Msg("Failed to write two-factor status")
			}
			return
		}
		r.stage(models.SyncStepLogin, progressLogin, message)
	}

	r.stage(models.SyncStepLogin, progressLogin, "Logging into LMS...")
	result, err := r.deps.Auth.Login(ctx, page, creds, onStatus)
	if err != nil {
		return err
	}

	if result.Outcome == auth.OutcomeTwoFactorRequired {
		if err := r.deps.Auth.AwaitTwoFactorCompletion(ctx, page, onStatus); err != nil {
			return err
		}
	}

	r.stage(models.SyncStepLogin, progressLoggedIn, "Login successful")
	return nil
}

func (r *Runner) stage(step models.SyncStep, progress int, message string) {
	if err := r.deps.Status.Update(step, progress, message); err != nil {
		r.deps.Logger.Warn().Err(err).Str("step", string(step)).Msg("Failed to write status")
	}
}

// failureMessage prefixes the error with the failing stage where it is known
func failureMessage(err error) string {
	var fieldErr *auth.LoginFieldNotFoundError
	var timeoutErr *auth.TwoFactorTimeoutError
	switch {
	case errors.As(err, &fieldErr), errors.As(err, &timeoutErr), errors.Is(err, auth.ErrLoginFailed):
		return "Login failed: " + err.Error()
	case errors.Is(err, crawler.ErrSessionExpired):
		return "LMS session expired, please sync again"
	case errors.Is(err, context.Canceled):
		return "Sync cancelled"
	}
	return err.Error()
}
