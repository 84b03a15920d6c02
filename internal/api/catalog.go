// Package api provides the client for the remote channel catalog.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/glebovdev/livetv-cli/internal/channel"
	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const requestTimeout = 30 * time.Second

// ErrCatalogLoad is wrapped by every error returned from GetChannels.
var ErrCatalogLoad = errors.New("catalog load failed")

// CatalogClient fetches and parses the channel catalog.
type CatalogClient struct {
	client *resty.Client
	source string
}

// NewCatalogClient creates a client for source, which is either an
// http(s) URL or a local file path (optionally with a file:// scheme).
func NewCatalogClient(source string) *CatalogClient {
	return &CatalogClient{
		client: resty.New().
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", fmt.Sprintf("LiveTV-CLI/%s", config.AppVersion)),
		source: source,
	}
}

// Source returns the configured catalog locator.
func (c *CatalogClient) Source() string {
	return c.source
}

// LocalPath returns the file path when the catalog is read from disk.
func (c *CatalogClient) LocalPath() (string, bool) {
	return localPath(c.source)
}

func localPath(source string) (string, bool) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return source, source != ""
	}
	if u.Scheme == "file" {
		return u.Path, u.Path != ""
	}
	return "", false
}

// GetChannels fetches the catalog and returns its valid records in order.
func (c *CatalogClient) GetChannels(ctx context.Context) ([]channel.Channel, error) {
	var (
		body []byte
		err  error
	)

	if path, ok := c.LocalPath(); ok {
		body, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read catalog file: %v", ErrCatalogLoad, err)
		}
	} else {
		body, err = c.fetch(ctx)
		if err != nil {
			return nil, err
		}
	}

	var records []channel.Channel
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: failed to parse catalog: %v", ErrCatalogLoad, err)
	}

	channels := make([]channel.Channel, 0, len(records))
	for _, ch := range records {
		if !ch.Valid() {
			log.Debug().Str("name", ch.Name).Msg("Skipping catalog record without name or url")
			continue
		}
		ch.Name = strings.TrimSpace(ch.Name)
		channels = append(channels, ch)
	}

	return channels, nil
}

func (c *CatalogClient) fetch(ctx context.Context) ([]byte, error) {
	resp, err := c.client.R().SetContext(ctx).Get(c.source)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch catalog: %v", ErrCatalogLoad, err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: catalog returned status %d: %s", ErrCatalogLoad, resp.StatusCode(), resp.Status())
	}

	return resp.Body(), nil
}
