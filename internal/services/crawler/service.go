// Package crawler discovers LMS courses and downloads their content archives.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/browser/probe"
	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/materialize"
)

const (
	contentWaitTimeout   = 10 * time.Second
	overlayDetachTimeout = 10 * time.Second
	overlayPause         = 500 * time.Millisecond
	downloadButtonWait   = 10 * time.Second
	downloadButtonPause  = time.Second
)

var (
	// Course navigation has rendered
	courseNavigation = interfaces.CSS(`a[href*="content"], [class*="content"], [class*="nav"]`)

	contentLinks = []interfaces.Selector{
		interfaces.CSS(`a[href*="/content/"]`),
		interfaces.CSSWithText("a", "Content"),
		interfaces.CSS(`[class*="content"] a`),
		interfaces.CSSWithText(`[class*="nav"] a`, "Content"),
		interfaces.CSS(`a[title*="Content"]`),
		interfaces.CSS(`a[aria-label*="Content"]`),
	}

	// Content module links, present once the content tool has loaded
	contentItems = interfaces.CSS(`a.d2l-link[href*="/viewContent/"]`)

	tableOfContents = []interfaces.Selector{
		interfaces.CSS("div#TreeItemTOC.d2l-placeholder"),
		interfaces.TextMatch("Table of Contents"),
	}

	renderOverlay  = interfaces.CSS(".d2l-partial-render-shimbg1")
	downloadButton = interfaces.CSSWithText("button.d2l-button", "Download")
)

// Service drives course discovery and archive scraping on an authenticated page
type Service struct {
	lms       common.LMSConfig
	cfg       common.ScraperConfig
	resolver  *materialize.Resolver
	extractor *LinkExtractor
	logger    arbor.ILogger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewService creates a crawler service. The duplicate strategy is validated here.
func NewService(lms common.LMSConfig, cfg common.ScraperConfig, logger arbor.ILogger) (*Service, error) {
	strategy, err := materialize.ParseStrategy(cfg.DuplicateStrategy)
	if err != nil {
		return nil, err
	}

	return &Service{
		lms:       lms,
		cfg:       cfg,
		resolver:  materialize.NewResolver(strategy),
		extractor: NewLinkExtractor(logger),
		logger:    logger,
		sleep:     sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DiscoverCourses waits for the dashboard and extracts the enrolled courses.
// It returns ErrNoCourses (possibly wrapped) when nothing was found and
// ErrSessionExpired when the LMS redirected back to login.
func (s *Service) DiscoverCourses(ctx context.Context, page interfaces.Page) ([]models.CourseRef, error) {
	if err := s.WaitForDashboardReady(ctx, page); err != nil {
		return nil, err
	}

	html, err := page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard content: %w", err)
	}

	courses, err := s.extractor.ExtractCourses(html)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, ErrNoCourses
	}

	for i, c := range courses {
		s.logger.Debug().Int("index", i+1).Str("course_id", c.CourseID).Str("course_name", c.CourseName).Msg("Course discovered")
	}
	s.logger.Info().Int("courses", len(courses)).Msg("Course discovery complete")
	return courses, nil
}

// BatchRoot is the directory extracted files for batchID are written under
func (s *Service) BatchRoot(batchID string) string {
	if s.cfg.PerBatchDirs && batchID != "" {
		return filepath.Join(s.cfg.DownloadsDir, batchID)
	}
	return s.cfg.DownloadsDir
}

// ScrapeCourse downloads the course content archive and materializes its files.
// Missing ToC or Download controls and unreadable archives yield a result with
// no files rather than an error. Errors are returned for session expiry,
// cancellation and failure to write the metadata file.
func (s *Service) ScrapeCourse(ctx context.Context, page interfaces.Page, course models.CourseRef, batchID string) (*ScrapeResult, error) {
	result := &ScrapeResult{
		Course:    course,
		BatchID:   batchID,
		BatchRoot: s.BatchRoot(batchID),
	}

	s.logger.Info().Str("course_id", course.CourseID).Str("course_name", course.CourseName).Str("batch_id", batchID).Msg("Starting course scrape")

	if err := s.validateSession(ctx, page); err != nil {
		return nil, err
	}
	if err := s.openCourseContent(ctx, page, course.CourseID); err != nil {
		return nil, err
	}

	if !s.openTableOfContents(ctx, page) {
		return result, ctx.Err()
	}

	download, err := s.downloadArchive(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("course_id", course.CourseID).Msg("Course archive download failed")
		return result, nil
	}

	archivePath, err := s.saveArchive(download, course.CourseID, &result.Summary)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save course archive")
		return result, nil
	}
	if archivePath == "" {
		return result, nil
	}
	result.ArchivePath = archivePath

	files, err := s.materializeArchive(archivePath, result.BatchRoot, batchID, &result.Summary)
	if err != nil {
		s.logger.Warn().Err(err).Str("archive", archivePath).Msg("Failed to extract course archive")
		return result, nil
	}
	result.Files = files

	s.logger.Info().
		Int("renamed", result.Summary.Renamed).
		Int("skipped", result.Summary.Skipped).
		Int("overwritten", result.Summary.Overwritten).
		Msg("Extraction summary")

	result.CourseJSONPath = filepath.Join(result.BatchRoot, MetadataFileName(course.CourseID, course.CourseName))
	if err := WriteBatchMetadata(result.CourseJSONPath, files); err != nil {
		return nil, err
	}

	s.logger.Info().Int("files", len(files)).Str("metadata", result.CourseJSONPath).Msg("Course scrape complete")
	return result, nil
}

func (s *Service) validateSession(ctx context.Context, page interfaces.Page) error {
	if err := page.Navigate(ctx, s.lms.HomeURL()); err != nil {
		return fmt.Errorf("failed to open LMS home: %w", err)
	}
	if err := page.WaitLoad(ctx); err != nil {
		return fmt.Errorf("LMS home did not load: %w", err)
	}
	return s.checkSession(ctx, page)
}

// openCourseContent opens the course home and follows its Content link,
// falling back to the content tool URL
func (s *Service) openCourseContent(ctx context.Context, page interfaces.Page, courseID string) error {
	if err := page.Navigate(ctx, s.lms.URL("/d2l/home/"+courseID)); err != nil {
		return fmt.Errorf("failed to open course home: %w", err)
	}
	if err := page.WaitLoad(ctx); err != nil {
		return fmt.Errorf("course home did not load: %w", err)
	}

	clicked := false
	if err := page.WaitForSelector(ctx, courseNavigation, contentWaitTimeout); err == nil {
		if sel, ok := probe.FirstMatch(ctx, page, probe.All(contentLinks, probe.VisibleNow)); ok {
			if err := page.Click(ctx, sel); err != nil {
				s.logger.Debug().Err(err).Str("selector", sel.String()).Msg("Content link click failed")
			} else {
				clicked = page.WaitLoad(ctx) == nil
			}
		}
	}

	if !clicked {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		contentURL := s.lms.URL("/d2l/le/content/" + courseID + "/Home")
		s.logger.Debug().Str("url", contentURL).Msg("Content link not found, navigating directly")
		if err := page.Navigate(ctx, contentURL); err != nil {
			return fmt.Errorf("failed to open course content: %w", err)
		}
		if err := page.WaitLoad(ctx); err != nil {
			return fmt.Errorf("course content did not load: %w", err)
		}
	}

	if err := page.WaitForSelector(ctx, contentItems, contentWaitTimeout); err != nil {
		s.logger.Debug().Err(err).Msg("Content items not visible")
	}
	return s.checkSession(ctx, page)
}

func (s *Service) openTableOfContents(ctx context.Context, page interfaces.Page) bool {
	sel, ok := probe.FirstMatch(ctx, page, probe.All(tableOfContents, probe.Present))
	if !ok {
		s.logger.Warn().Msg("Table of Contents tab not found")
		return false
	}
	if err := page.Click(ctx, sel); err != nil {
		s.logger.Warn().Err(err).Str("selector", sel.String()).Msg("Table of Contents click failed")
		return false
	}
	if err := page.WaitLoad(ctx); err != nil {
		return false
	}

	if err := page.WaitForDetached(ctx, renderOverlay, overlayDetachTimeout); err != nil {
		s.logger.Debug().Err(err).Msg("Render overlay still attached")
	}
	return s.sleep(ctx, overlayPause) == nil
}

// downloadArchive clicks Download and captures the archive, retrying the click once
func (s *Service) downloadArchive(ctx context.Context, page interfaces.Page) (*interfaces.Download, error) {
	if err := page.WaitForSelector(ctx, downloadButton, downloadButtonWait); err != nil {
		return nil, fmt.Errorf("download control not found: %w", err)
	}
	if err := s.sleep(ctx, downloadButtonPause); err != nil {
		return nil, err
	}

	trigger := func(ctx context.Context) error {
		return page.Click(ctx, downloadButton)
	}

	download, err := page.ExpectDownload(ctx, trigger, s.cfg.DownloadTimeout.Duration)
	if err == nil {
		return download, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.logger.Debug().Err(err).Msg("Download attempt failed, retrying")
	return page.ExpectDownload(ctx, trigger, s.cfg.DownloadTimeout.Duration)
}

// saveArchive moves the captured download into the downloads root. An empty
// path means the duplicate strategy skipped it.
func (s *Service) saveArchive(download *interfaces.Download, courseID string, summary *materialize.Summary) (string, error) {
	name := SanitizeFilename(download.SuggestedFilename)
	if name == "" {
		name = "course_" + courseID + ".zip"
	}

	target, action, err := s.resolver.MoveFile(download.Path, filepath.Join(s.cfg.DownloadsDir, name))
	if err != nil {
		return "", err
	}
	summary.Record(action)

	switch action {
	case materialize.ActionSkipped:
		s.logger.Info().Str("archive", name).Msg("Archive skipped, duplicate exists")
		_ = os.Remove(download.Path)
		return "", nil
	case materialize.ActionRenamed:
		s.logger.Info().Str("archive", target).Msg("Archive renamed to avoid duplicate")
	case materialize.ActionOverwritten:
		s.logger.Warn().Str("archive", target).Msg("Overwriting existing archive")
	}
	return target, nil
}

// materializeArchive extracts to a scratch directory and copies every file into batchRoot
func (s *Service) materializeArchive(archivePath, batchRoot, batchID string, summary *materialize.Summary) ([]models.ScrapedFileEntry, error) {
	scratch, err := os.MkdirTemp("", "eduseek-extract-*")
	if err != nil {
		return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
	}
	defer os.RemoveAll(scratch)

	extracted, err := ExtractArchive(archivePath, scratch)
	if err != nil {
		return nil, err
	}

	entries := make([]models.ScrapedFileEntry, 0, len(extracted))
	for _, rel := range extracted {
		src := filepath.Join(scratch, filepath.FromSlash(rel))
		final, action, err := s.resolver.CopyFile(src, filepath.Join(batchRoot, filepath.FromSlash(rel)))
		if err != nil {
			return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
		}
		summary.Record(action)

		if final == "" {
			s.logger.Debug().Str("file", rel).Msg("Extracted file skipped, duplicate exists")
			continue
		}

		relFinal, err := filepath.Rel(batchRoot, final)
		if err != nil {
			return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
		}
		entries = append(entries, models.ScrapedFileEntry{
			Filename:      filepath.Base(final),
			RelativePath:  filepath.ToSlash(relFinal),
			FileType:      InferFileType(rel),
			Source:        models.SourceArchiveDownload,
			ScrapeBatchID: batchID,
		})
	}

	return entries, nil
}

// IsSessionExpired reports whether err means the caller must re-authenticate
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
