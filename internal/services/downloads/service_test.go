package downloads

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/agenthub/internal/services/events"
	"github.com/ternarybob/agenthub/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// MockFetcher is a mock implementation of interfaces.Fetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchItems(ctx context.Context, url, selector string) ([]models.FetchedItem, error) {
	args := m.Called(ctx, url, selector)
	items, _ := args.Get(0).([]models.FetchedItem)
	return items, args.Error(1)
}

func newTestService(t *testing.T, fetch interfaces.Fetcher, bus interfaces.EventService, opts ...Option) (*Service, interfaces.DownloadStorage) {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	cfg := common.NewDefaultConfig()
	cfg.Downloads.Tick = "5ms"
	cfg.Downloads.MaxIncrement = 15

	s := NewService(manager.DownloadStorage(), fetch, bus, cfg, arbor.NewLogger(), opts...)
	t.Cleanup(s.Close)
	return s, manager.DownloadStorage()
}

func TestStart_ProgressesToCompletion(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()

	completed := make(chan string, 1)
	_, err := bus.Subscribe(interfaces.EventDownloadCompleted, func(ctx context.Context, e interfaces.Event) error {
		completed <- e.Payload.(*models.Download).ID
		return nil
	})
	require.NoError(t, err)

	s, _ := newTestService(t, new(MockFetcher), bus, WithRandom(func() float64 { return 0.9 }))
	ctx := context.Background()

	d, err := s.Start(ctx, models.StartDownloadRequest{URL: "https://cdn.example.com/files/setup.exe?sig=1"})
	require.NoError(t, err)
	assert.Equal(t, "setup.exe", d.Filename)
	assert.Equal(t, models.DownloadStatusDownloading, d.Status)
	assert.Equal(t, 0.0, d.Progress)

	s.Wait()

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.DownloadStatusCompleted, list[0].Status)
	assert.Equal(t, 100.0, list[0].Progress)
	assert.Equal(t, d.ID, <-completed)
}

func TestStart_Validation(t *testing.T) {
	s, _ := newTestService(t, new(MockFetcher), nil)

	_, err := s.Start(context.Background(), models.StartDownloadRequest{Filename: "x"})
	assert.ErrorIs(t, err, common.ErrValidation)

	d, err := s.Start(context.Background(), models.StartDownloadRequest{URL: "https://example.com/a.zip", Filename: "custom.zip"})
	require.NoError(t, err)
	assert.Equal(t, "custom.zip", d.Filename)
}

func TestResume_ContinuesUnfinished(t *testing.T) {
	s, storage := newTestService(t, new(MockFetcher), nil, WithRandom(func() float64 { return 1 }))
	ctx := context.Background()

	require.NoError(t, storage.SaveDownload(ctx, &models.Download{ID: "d1", URL: "u", Filename: "f", Status: models.DownloadStatusDownloading, Progress: 40}))
	require.NoError(t, storage.SaveDownload(ctx, &models.Download{ID: "d2", URL: "u", Filename: "f", Status: models.DownloadStatusCompleted, Progress: 100}))

	require.NoError(t, s.Resume(ctx))
	s.Wait()

	d1, err := storage.GetDownload(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusCompleted, d1.Status)
	assert.Equal(t, 100.0, d1.Progress)
}

func TestAnalyze_FiltersMediaLinks(t *testing.T) {
	fetch := new(MockFetcher)
	fetch.On("FetchItems", mock.Anything, "https://example.com/page", "a[href]").Return([]models.FetchedItem{
		{Title: "Installer", Link: "https://example.com/files/app.EXE"},
		{Title: "", Link: "https://example.com/media/song.mp3?dl=1"},
		{Title: "Docs", Link: "https://example.com/docs/"},
		{Title: "Notes", Link: "https://example.com/notes.pdf.html"},
		{Title: "No link", Link: ""},
	}, nil)

	s, _ := newTestService(t, fetch, nil)
	candidates, err := s.Analyze(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "Installer", candidates[0].Filename)
	assert.Equal(t, "exe", candidates[0].Type)
	assert.Equal(t, UnknownSize, candidates[0].Size)
	assert.NotEmpty(t, candidates[0].ID)

	assert.Equal(t, "song.mp3", candidates[1].Filename)
	assert.Equal(t, "mp3", candidates[1].Type)
	assert.Equal(t, "https://example.com/media/song.mp3?dl=1", candidates[1].URL)
}

func TestAnalyze_Errors(t *testing.T) {
	fetch := new(MockFetcher)
	fetch.On("FetchItems", mock.Anything, "https://down.example.com", "a[href]").
		Return(nil, &common.UpstreamError{Kind: common.UpstreamNetwork, URL: "https://down.example.com", Err: errors.New("refused")})

	s, _ := newTestService(t, fetch, nil)

	_, err := s.Analyze(context.Background(), "https://down.example.com")
	assert.ErrorIs(t, err, common.ErrUpstream)

	_, err = s.Analyze(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.Analyze(context.Background(), "mailto:someone@example.com")
	assert.ErrorIs(t, err, common.ErrValidation)
}
