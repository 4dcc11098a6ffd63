package scanner

import (
	"os"
	"path/filepath"
	"time"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/patrickmn/go-cache"
)

// ThumbnailResolver returns a previously generated thumbnail for a video
type ThumbnailResolver interface {
	Lookup(videoID string, kind models.ThumbnailKind) (string, bool)
}

var thumbnailExtensions = []string{".jpg", ".png", ".webp"}

// missTTL bounds how long a missing thumbnail is remembered; generation runs elsewhere
const missTTL = time.Minute

// ThumbnailCache resolves thumbnails from <dir>/<kind>/<videoID>.<ext>, memoising lookups
type ThumbnailCache struct {
	dir  string
	memo *cache.Cache
}

// NewThumbnailCache creates a resolver over dir
func NewThumbnailCache(dir string, ttl time.Duration) *ThumbnailCache {
	return &ThumbnailCache{
		dir:  dir,
		memo: cache.New(ttl, 2*ttl),
	}
}

// Lookup returns the cached thumbnail path for videoID, if one exists
func (c *ThumbnailCache) Lookup(videoID string, kind models.ThumbnailKind) (string, bool) {
	if c == nil || c.dir == "" || videoID == "" {
		return "", false
	}
	key := string(kind) + "/" + videoID
	if v, ok := c.memo.Get(key); ok {
		path := v.(string)
		return path, path != ""
	}

	for _, ext := range thumbnailExtensions {
		candidate := filepath.Join(c.dir, string(kind), videoID+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			c.memo.Set(key, candidate, cache.DefaultExpiration)
			return candidate, true
		}
	}
	c.memo.Set(key, "", missTTL)
	return "", false
}

// Forget drops a memoised lookup, e.g. after a thumbnail was generated
func (c *ThumbnailCache) Forget(videoID string, kind models.ThumbnailKind) {
	c.memo.Delete(string(kind) + "/" + videoID)
}
