// -----------------------------------------------------------------------
// Download Simulator - simulated transfers and page link analysis
// -----------------------------------------------------------------------

package downloads

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/agenthub/internal/services/fetcher"
	"github.com/ternarybob/arbor"
)

const (
	// DefaultTick is the interval between simulated progress updates
	DefaultTick = time.Second

	// DefaultMaxIncrement is the largest progress gain per tick
	DefaultMaxIncrement = 15.0

	// UnknownSize is reported for analysed links; nothing is downloaded to measure them
	UnknownSize = "unknown"
)

var mediaExtension = regexp.MustCompile(`(?i)\.(mp4|mp3|pdf|zip|rar|exe|apk|dmg)$`)

var errDownloadFinished = errors.New("download finished")

// Service simulates downloads and finds downloadable links on pages
type Service struct {
	storage      interfaces.DownloadStorage
	fetcher      interfaces.Fetcher
	events       interfaces.EventService
	logger       arbor.ILogger
	tick         time.Duration
	maxIncrement float64
	fetchTimeout time.Duration
	random       func() float64
	background   *common.Background
}

// Option configures the Service
type Option func(*Service)

// WithRandom replaces the progress increment source; fn returns values in [0,1)
func WithRandom(fn func() float64) Option {
	return func(s *Service) {
		s.random = fn
	}
}

// NewService creates a download simulator. events may be nil.
func NewService(storage interfaces.DownloadStorage, fetch interfaces.Fetcher, events interfaces.EventService, config *common.Config, logger arbor.ILogger, opts ...Option) *Service {
	maxIncrement := config.Downloads.MaxIncrement
	if maxIncrement <= 0 {
		maxIncrement = DefaultMaxIncrement
	}

	s := &Service{
		storage:      storage,
		fetcher:      fetch,
		events:       events,
		logger:       logger,
		tick:         common.ParseDurationOr(config.Downloads.Tick, DefaultTick),
		maxIncrement: maxIncrement,
		fetchTimeout: common.ParseDurationOr(config.Fetcher.Timeout, fetcher.DefaultTimeout),
		random:       rand.Float64,
		background:   common.NewBackground(context.Background(), logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze fetches rawURL and returns every link that points at a media or archive file
func (s *Service) Analyze(ctx context.Context, rawURL string) ([]models.DownloadCandidate, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := common.ValidateStruct(models.AnalyzeRequest{URL: rawURL}); err != nil {
		return nil, err
	}
	if err := common.ValidateHTTPURL("url", rawURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	items, err := s.fetcher.FetchItems(ctx, rawURL, fetcher.DefaultSelector)
	if err != nil {
		return nil, err
	}

	candidates := []models.DownloadCandidate{}
	for _, item := range items {
		if item.Link == "" {
			continue
		}
		linkPath := linkPath(item.Link)
		match := mediaExtension.FindStringSubmatch(linkPath)
		if match == nil {
			continue
		}

		filename := item.Title
		if filename == "" {
			filename = path.Base(linkPath)
		}
		candidates = append(candidates, models.DownloadCandidate{
			ID:       common.NewID(),
			URL:      item.Link,
			Filename: filename,
			Size:     UnknownSize,
			Type:     strings.ToLower(match[1]),
		})
	}

	s.logger.Debug().Str("url", rawURL).Int("links", len(items)).Int("downloads", len(candidates)).Msg("Page analysed")
	return candidates, nil
}

// linkPath returns the path portion of link, ignoring query and fragment
func linkPath(link string) string {
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		return u.Path
	}
	return link
}

// Start records a new download and advances it in the background until complete
func (s *Service) Start(ctx context.Context, req models.StartDownloadRequest) (*models.Download, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.Filename = strings.TrimSpace(req.Filename)
	if err := common.ValidateStruct(req); err != nil {
		return nil, err
	}

	filename := req.Filename
	if filename == "" {
		filename = path.Base(linkPath(req.URL))
	}

	download := &models.Download{
		ID:        common.NewID(),
		URL:       req.URL,
		Filename:  filename,
		Status:    models.DownloadStatusDownloading,
		Progress:  0,
		CreatedAt: time.Now(),
	}
	if err := s.storage.SaveDownload(ctx, download); err != nil {
		return nil, err
	}

	s.logger.Info().Str("download_id", download.ID).Str("filename", filename).Msg("Download started")
	s.simulate(download.ID)

	return download.Clone(), nil
}

// List returns all downloads in creation order
func (s *Service) List(ctx context.Context) ([]*models.Download, error) {
	return s.storage.ListDownloads(ctx)
}

// Resume continues simulating downloads left unfinished by a previous process
func (s *Service) Resume(ctx context.Context) error {
	downloads, err := s.storage.ListDownloads(ctx)
	if err != nil {
		return err
	}
	resumed := 0
	for _, d := range downloads {
		if d.Status == models.DownloadStatusDownloading {
			s.simulate(d.ID)
			resumed++
		}
	}
	if resumed > 0 {
		s.logger.Info().Int("count", resumed).Msg("Resumed unfinished downloads")
	}
	return nil
}

func (s *Service) simulate(id string) {
	s.background.Go("download:"+id, func(ctx context.Context) {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			download, err := s.storage.UpdateDownload(context.WithoutCancel(ctx), id, func(d *models.Download) error {
				if d.Status == models.DownloadStatusCompleted {
					return errDownloadFinished
				}
				d.Progress += s.random() * s.maxIncrement
				if d.Progress >= 100 {
					d.Progress = 100
					d.Status = models.DownloadStatusCompleted
				}
				return nil
			})
			if err != nil {
				if !errors.Is(err, errDownloadFinished) && !errors.Is(err, common.ErrNotFound) {
					s.logger.Warn().Err(err).Str("download_id", id).Msg("Failed to advance download")
				}
				return
			}

			if download.Status == models.DownloadStatusCompleted {
				s.logger.Info().Str("download_id", id).Str("filename", download.Filename).Msg("Download completed")
				if s.events != nil {
					if err := s.events.PublishSync(context.WithoutCancel(ctx), interfaces.Event{Type: interfaces.EventDownloadCompleted, Payload: download}); err != nil {
						s.logger.Warn().Err(err).Str("download_id", id).Msg("Download event handlers failed")
					}
				}
				return
			}
		}
	})
}

// Wait blocks until every simulated download has finished
func (s *Service) Wait() {
	s.background.Wait()
}

// Close stops the simulations and waits for them
func (s *Service) Close() {
	s.background.Close()
}
