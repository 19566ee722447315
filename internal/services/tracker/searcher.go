// -----------------------------------------------------------------------
// Track Searcher - keyword tracking across trending platforms
// -----------------------------------------------------------------------

package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultPlatformTimeout bounds a single platform search
const DefaultPlatformTimeout = 5 * time.Second

// Searcher owns track entities and refreshes them by querying every platform
// named by the track. One platform failing never affects the others.
type Searcher struct {
	storage          interfaces.TrackStorage
	registry         *Registry
	events           interfaces.EventService
	logger           arbor.ILogger
	defaultPlatforms []string
	platformTimeout  time.Duration

	locks      *common.KeyedMutex
	flights    singleflight.Group
	background *common.Background
	now        func() time.Time
}

// NewSearcher creates a track searcher. events may be nil.
func NewSearcher(storage interfaces.TrackStorage, registry *Registry, events interfaces.EventService, config common.TrackerConfig, logger arbor.ILogger) *Searcher {
	defaults := config.DefaultPlatforms
	if len(defaults) == 0 {
		defaults = []string{PlatformWeibo, PlatformZhihu, PlatformBaidu}
	}

	return &Searcher{
		storage:          storage,
		registry:         registry,
		events:           events,
		logger:           logger,
		defaultPlatforms: defaults,
		platformTimeout:  common.ParseDurationOr(config.PlatformTimeout, DefaultPlatformTimeout),
		locks:            common.NewKeyedMutex(),
		background:       common.NewBackground(context.Background(), logger),
		now:              time.Now,
	}
}

// Create validates and stores a new active track, then searches it in the background
func (s *Searcher) Create(ctx context.Context, req models.CreateTrackRequest) (*models.Track, error) {
	req.Keyword = strings.TrimSpace(req.Keyword)
	if err := common.ValidateStruct(req); err != nil {
		return nil, err
	}

	platforms, err := s.normalizePlatforms(req.Platforms)
	if err != nil {
		return nil, err
	}

	track := &models.Track{
		ID:        common.NewID(),
		Keyword:   req.Keyword,
		Platforms: platforms,
		Results:   []models.TrackResult{},
		Active:    true,
		CreatedAt: s.now(),
	}

	if err := s.storage.SaveTrack(ctx, track); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("track_id", track.ID).
		Str("keyword", track.Keyword).
		Str("platforms", strings.Join(platforms, ",")).
		Msg("Track created")

	id := track.ID
	s.background.Go("track:"+id, func(ctx context.Context) {
		_ = s.Refresh(ctx, id)
	})

	return track.Clone(), nil
}

// normalizePlatforms lowercases, dedupes and checks names against the registry.
// An empty list means the configured defaults.
func (s *Searcher) normalizePlatforms(requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = s.defaultPlatforms
	}

	seen := make(map[string]bool, len(requested))
	platforms := make([]string, 0, len(requested))
	for _, name := range requested {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		if _, ok := s.registry.Lookup(name); !ok {
			return nil, common.NewValidationError("platforms", fmt.Sprintf("unknown platform %q (known: %s)", name, strings.Join(s.registry.Names(), ", ")))
		}
		seen[name] = true
		platforms = append(platforms, name)
	}

	if len(platforms) == 0 {
		return nil, common.NewValidationError("platforms", "at least one platform is required")
	}
	return platforms, nil
}

// Get returns a snapshot of the track
func (s *Searcher) Get(ctx context.Context, id string) (*models.Track, error) {
	return s.storage.GetTrack(ctx, id)
}

// List returns all tracks in creation order
func (s *Searcher) List(ctx context.Context) ([]*models.Track, error) {
	return s.storage.ListTracks(ctx)
}

// Delete removes the track. Unknown ids succeed.
func (s *Searcher) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.storage.DeleteTrack(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("track_id", id).Msg("Track deleted")
	return nil
}

// SetActive pauses or resumes scheduled searches
func (s *Searcher) SetActive(ctx context.Context, id string, active bool) (*models.Track, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.storage.UpdateTrack(ctx, id, func(track *models.Track) error {
		track.Active = active
		return nil
	})
}

// ListDue returns the ids of all active tracks
func (s *Searcher) ListDue(ctx context.Context) ([]string, error) {
	tracks, err := s.storage.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, track := range tracks {
		if track.Active {
			ids = append(ids, track.ID)
		}
	}
	return ids, nil
}

// Refresh searches every platform of the track and replaces its results with
// the successful answers in declared order. Missing or inactive tracks are skipped.
// Concurrent calls for one id share a single search bounded by the platform
// timeout and the searcher's lifetime. A caller whose ctx ends first gets
// ctx.Err() while the search finishes for the others. A cancelled search
// writes nothing.
func (s *Searcher) Refresh(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	flight := s.flights.DoChan(id, func() (interface{}, error) {
		shared, release, err := s.background.Detach(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
		return nil, s.refresh(shared, id)
	})

	select {
	case res := <-flight:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Searcher) refresh(ctx context.Context, id string) error {
	track, err := s.storage.GetTrack(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !track.Active {
		return nil
	}

	results := s.searchAll(ctx, track.Keyword, track.Platforms)

	// A cancelled cycle failed every platform; that is not an answer
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	updated, err := s.storage.UpdateTrack(context.WithoutCancel(ctx), id, func(track *models.Track) error {
		track.Results = results
		updated := now
		track.LastUpdate = &updated
		return nil
	})
	if errors.Is(err, common.ErrNotFound) {
		s.logger.Debug().Str("track_id", id).Msg("Track deleted during refresh, result dropped")
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("track_id", id).
		Int("platforms", len(track.Platforms)).
		Int("answered", len(results)).
		Msg("Track refreshed")

	if s.events != nil {
		if err := s.events.Publish(context.WithoutCancel(ctx), interfaces.Event{Type: interfaces.EventTrackRefreshed, Payload: updated}); err != nil {
			s.logger.Warn().Err(err).Str("track_id", id).Msg("Failed to publish track event")
		}
	}
	return nil
}

// searchAll fans out one search per platform and waits for all of them
func (s *Searcher) searchAll(ctx context.Context, keyword string, platforms []string) []models.TrackResult {
	answers := make([][]models.TrackItem, len(platforms))
	ok := make([]bool, len(platforms))

	var group errgroup.Group
	for i, name := range platforms {
		group.Go(func() error {
			items, err := s.searchOne(ctx, name, keyword)
			if err != nil {
				s.logger.Warn().Err(err).Str("platform", name).Str("keyword", keyword).Msg("Platform search failed")
				return nil
			}
			answers[i] = items
			ok[i] = true
			return nil
		})
	}
	_ = group.Wait()

	results := make([]models.TrackResult, 0, len(platforms))
	for i, name := range platforms {
		if !ok[i] {
			continue
		}
		items := answers[i]
		if items == nil {
			items = []models.TrackItem{}
		}
		results = append(results, models.TrackResult{Platform: name, Items: items})
	}
	return results
}

func (s *Searcher) searchOne(ctx context.Context, name, keyword string) (items []models.TrackItem, err error) {
	platform, found := s.registry.Lookup(name)
	if !found {
		return nil, fmt.Errorf("platform %s is not registered", name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.platformTimeout)
	defer cancel()

	type answer struct {
		items []models.TrackItem
		err   error
	}
	done := make(chan answer, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Str("platform", name).Str("stack", string(debug.Stack())).Msg("Platform search panicked")
				done <- answer{err: fmt.Errorf("platform %s panicked: %v", name, r)}
			}
		}()
		items, err := platform.Search(ctx, keyword)
		done <- answer{items: items, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			return nil, &common.UpstreamError{Kind: common.UpstreamNetwork, URL: name, Err: a.err}
		}
		return a.items, nil
	case <-ctx.Done():
		return nil, &common.UpstreamError{Kind: common.UpstreamTimeout, URL: name, Err: ctx.Err()}
	}
}

// Wait blocks until background searches started by Create have finished
func (s *Searcher) Wait() {
	s.background.Wait()
}

// Close cancels background searches and waits for them
func (s *Searcher) Close() {
	s.background.Close()
}
