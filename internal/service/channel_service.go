// Package service provides the business logic layer for managing the channel catalog.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/glebovdev/livetv-cli/internal/api"
	"github.com/glebovdev/livetv-cli/internal/cache"
	"github.com/glebovdev/livetv-cli/internal/channel"
	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

const (
	imageLoadTimeout = 15 * time.Second
	prefetchWorkers  = 4
	watchDebounce    = 500 * time.Millisecond
)

// ErrRemoteCatalog is returned by Watch when the catalog is not a local file.
var ErrRemoteCatalog = errors.New("catalog is not a local file")

// ChannelService manages the channel catalog, including fetching, artwork
// caching, periodic refresh and file watching.
type ChannelService struct {
	apiClient  *api.CatalogClient
	images     *resty.Client
	imageCache *cache.Cache
	pool       *ants.Pool

	mu            sync.RWMutex
	catalog       *channel.Catalog
	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	onRefresh     func(*channel.Catalog)
}

// NewChannelService creates a ChannelService reading from apiClient.
func NewChannelService(apiClient *api.CatalogClient) *ChannelService {
	imageCache, err := cache.NewCache()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize image cache, images will not be cached")
	}

	if imageCache != nil {
		go func() {
			if err := imageCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	return newChannelService(apiClient, imageCache)
}

func newChannelService(apiClient *api.CatalogClient, imageCache *cache.Cache) *ChannelService {
	pool, err := ants.NewPool(prefetchWorkers)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create artwork worker pool, prefetch disabled")
	}

	return &ChannelService{
		apiClient:  apiClient,
		imageCache: imageCache,
		pool:       pool,
		images: resty.New().
			SetTimeout(imageLoadTimeout).
			SetHeader("User-Agent", fmt.Sprintf("LiveTV-CLI/%s", config.AppVersion)),
	}
}

// Load fetches the catalog and replaces the current one. On failure the
// previous catalog is kept.
func (s *ChannelService) Load(ctx context.Context) (*channel.Catalog, error) {
	channels, err := s.apiClient.GetChannels(ctx)
	metrics.RecordCatalogLoad(err)
	if err != nil {
		return nil, err
	}

	catalog := channel.NewCatalog(channels)

	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()

	log.Debug().Int("count", catalog.Len()).Str("source", s.apiClient.Source()).Msg("Channel catalog loaded")
	return catalog, nil
}

// Catalog returns the current catalog snapshot, or nil before the first
// successful load.
func (s *ChannelService) Catalog() *channel.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func (s *ChannelService) Channels() []channel.Channel {
	return s.Catalog().All()
}

// Source returns where the catalog is loaded from.
func (s *ChannelService) Source() string {
	return s.apiClient.Source()
}

func (s *ChannelService) Count() int {
	return s.Catalog().Len()
}

// Filter returns the channels matching query within category.
func (s *ChannelService) Filter(query, category string) []channel.Channel {
	return s.Catalog().Filter(query, category)
}

func (s *ChannelService) Categories() []string {
	return s.Catalog().Categories()
}

// Resolve returns the current record for a selection, looking it up by
// stable ID first and display name second.
func (s *ChannelService) Resolve(id, name string) (channel.Channel, bool) {
	catalog := s.Catalog()
	if ch, ok := catalog.Lookup(id); ok {
		return ch, true
	}
	return catalog.FindByName(name)
}

func (s *ChannelService) LoadImage(url string) (image.Image, error) {
	if s.imageCache != nil {
		if img := s.imageCache.GetImage(url); img != nil {
			log.Debug().Str("url", url).Msg("Image loaded from cache")
			return img, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), imageLoadTimeout)
	defer cancel()

	resp, err := s.images.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("artwork returned status %d", resp.StatusCode())
	}

	img, _, err := image.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, err
	}

	if s.imageCache != nil {
		if err := s.imageCache.SaveImage(url, img); err != nil {
			log.Debug().Err(err).Str("url", url).Msg("Failed to cache image")
		} else {
			log.Debug().Str("url", url).Msg("Image cached")
		}
	}

	return img, nil
}

// PrefetchArtwork warms the artwork cache for urls on the worker pool and
// blocks until every download has finished or ctx is done.
func (s *ChannelService) PrefetchArtwork(ctx context.Context, urls []string) int {
	if s.pool == nil {
		return 0
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		loaded int
	)
	seen := make(map[string]bool, len(urls))

	for _, url := range urls {
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if _, err := s.LoadImage(url); err != nil {
				log.Debug().Err(err).Str("url", url).Msg("Artwork prefetch failed")
				return
			}
			mu.Lock()
			loaded++
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			log.Debug().Err(err).Msg("Artwork prefetch rejected")
			break
		}
	}

	wg.Wait()
	log.Debug().Int("loaded", loaded).Int("requested", len(seen)).Msg("Artwork prefetch completed")
	return loaded
}

func (s *ChannelService) StartPeriodicRefresh(interval time.Duration, callback func(*channel.Catalog)) {
	s.StopPeriodicRefresh()

	s.mu.Lock()
	s.onRefresh = callback
	s.stopRefresh = make(chan struct{})
	s.refreshTicker = time.NewTicker(interval)
	ticker := s.refreshTicker
	stopCh := s.stopRefresh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.refreshInBackground(context.Background())
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started periodic catalog refresh")
}

func (s *ChannelService) StopPeriodicRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
		log.Debug().Msg("Stopped periodic catalog refresh")
	}
}

func (s *ChannelService) refreshInBackground(ctx context.Context) {
	catalog, err := s.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Background refresh failed, keeping cached data")
		return
	}

	s.mu.RLock()
	callback := s.onRefresh
	s.mu.RUnlock()

	if callback != nil {
		callback(catalog)
	}
}

// Watch reloads a local catalog file whenever it changes and passes the new
// catalog to callback. It returns once the watcher is running; watching
// stops when ctx is done.
func (s *ChannelService) Watch(ctx context.Context, callback func(*channel.Catalog)) error {
	path, ok := s.apiClient.LocalPath()
	if !ok {
		return ErrRemoteCatalog
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch catalog directory: %w", err)
	}

	log.Debug().Str("path", path).Msg("Watching catalog file for changes")

	go s.watchLoop(ctx, watcher, filepath.Clean(path), callback)
	return nil
}

func (s *ChannelService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, callback func(*channel.Catalog)) {
	var debounceTimer *time.Timer

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		_ = watcher.Close()
		log.Debug().Msg("Catalog watcher stopped")
	}()

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		catalog, err := s.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Catalog reload failed, keeping cached data")
			return
		}
		if callback != nil {
			callback(catalog)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			log.Debug().Str("op", event.Op.String()).Msg("Catalog file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Catalog watcher error")
		}
	}
}

// Close stops background work and releases the worker pool.
func (s *ChannelService) Close() {
	s.StopPeriodicRefresh()
	if s.pool != nil {
		s.pool.Release()
	}
}
