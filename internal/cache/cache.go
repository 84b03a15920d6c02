// Package cache provides a two-tier cache for channel artwork.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached artwork is valid on disk (7 days).
	DefaultExpiry = 7 * 24 * time.Hour
	// ImageSubdir is the subdirectory for cached images.
	ImageSubdir = "artwork"
	// AppName is used for the cache directory name.
	AppName = "livetv"
	// MemoryEntries bounds the number of decoded images kept in memory.
	MemoryEntries = 256
)

// Cache keeps decoded artwork in memory and PNG copies on disk.
type Cache struct {
	baseDir string
	expiry  time.Duration
	memory  *otter.Cache[string, image.Image]
}

// NewCache creates a Cache in the user cache directory with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return newCache(cacheDir, DefaultExpiry), nil
}

// NewCacheIn creates a Cache rooted at baseDir.
func NewCacheIn(baseDir string, expiry time.Duration) *Cache {
	return newCache(baseDir, expiry)
}

func newCache(baseDir string, expiry time.Duration) *Cache {
	return &Cache{
		baseDir: baseDir,
		expiry:  expiry,
		memory: otter.Must(&otter.Options[string, image.Image]{
			MaximumSize: MemoryEntries,
		}),
	}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	return filepath.Join(userCacheDir, AppName), nil
}

func hashURL(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:16])
}

func (c *Cache) imagePath(url string) string {
	return filepath.Join(c.baseDir, ImageSubdir, hashURL(url)+".png")
}

// GetImage returns cached artwork for url, or nil when missing or expired.
func (c *Cache) GetImage(url string) image.Image {
	if img, ok := c.memory.GetIfPresent(url); ok {
		return img
	}

	imagePath := c.imagePath(url)

	info, err := os.Stat(imagePath)
	if err != nil {
		return nil
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(imagePath); err != nil {
			log.Debug().Err(err).Str("file", imagePath).Msg("Failed to remove expired artwork")
		}
		return nil
	}

	file, err := os.Open(imagePath)
	if err != nil {
		return nil
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		log.Debug().Err(err).Str("file", imagePath).Msg("Failed to decode cached artwork")
		return nil
	}

	c.memory.Set(url, img)
	return img
}

// SaveImage stores artwork in memory and on disk, keyed by its URL.
func (c *Cache) SaveImage(url string, img image.Image) error {
	c.memory.Set(url, img)

	imagePath := c.imagePath(url)
	if err := os.MkdirAll(filepath.Dir(imagePath), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	file, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return nil
}

// CleanExpired removes disk entries older than the expiry duration.
func (c *Cache) CleanExpired() error {
	imageDir := filepath.Join(c.baseDir, ImageSubdir)

	entries, err := os.ReadDir(imageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) <= c.expiry {
			continue
		}

		filePath := filepath.Join(imageDir, entry.Name())
		if err := os.Remove(filePath); err != nil {
			log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired artwork")
			failed++
		} else {
			removed++
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Artwork cache cleanup completed")
	}

	return nil
}
