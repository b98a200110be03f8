package client

import (
	"context"

	"github.com/burrowfs/burrow/pkg/cache"
)

// DownloadCached fetches a file through the local download cache. The
// lastModified stamp comes from the listing descriptor; a republished
// file misses the cache and is fetched fresh.
func (c *Client) DownloadCached(ctx context.Context, store *cache.Cache, tenant, path string, lastModified int64) (string, error) {
	if local, ok := store.Get(tenant, path, lastModified); ok {
		return local, nil
	}
	body, _, err := c.Download(ctx, tenant, path, 0, 0)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return store.Put(tenant, path, lastModified, body)
}
