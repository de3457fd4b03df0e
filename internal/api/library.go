package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tessro/elixir/internal/core"
)

// ListServers returns the servers registered to the account.
func (c *Client) ListServers(ctx context.Context) ([]core.RegistryEntry, error) {
	var out []core.RegistryEntry
	if err := c.Get(ctx, "/api/v1/me/servers", &out); err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return out, nil
}

// ListItems returns every library item.
func (c *Client) ListItems(ctx context.Context) ([]core.LibraryItem, error) {
	var out []core.LibraryItem
	if err := c.Get(ctx, "/api/v1/library/items", &out); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return out, nil
}

// GetItem returns one library item with its files.
func (c *Client) GetItem(ctx context.Context, id string) (*core.LibraryDetail, error) {
	var out core.LibraryDetail
	if err := c.Get(ctx, "/api/v1/library/items/"+url.PathEscape(id), &out); err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &out, nil
}

// Scan asks the server to rescan its library.
func (c *Client) Scan(ctx context.Context, forceMetadata bool) error {
	path := BuildURL("/api/v1/library/scan", map[string]string{
		"force_metadata": strconv.FormatBool(forceMetadata),
	})
	if err := c.Post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}
