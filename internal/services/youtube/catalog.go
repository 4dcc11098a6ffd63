package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/sirupsen/logrus"
)

type thumbnail struct {
	URL string `json:"url"`
}

type thumbnails struct {
	Default thumbnail `json:"default"`
	Medium  thumbnail `json:"medium"`
	High    thumbnail `json:"high"`
}

// best returns the largest available thumbnail URL
func (t thumbnails) best() string {
	for _, u := range []string{t.High.URL, t.Medium.URL, t.Default.URL} {
		if u != "" {
			return u
		}
	}
	return ""
}

type channelItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title      string     `json:"title"`
		Thumbnails thumbnails `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		VideoCount string `json:"videoCount"`
	} `json:"statistics"`
	ContentDetails struct {
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	} `json:"contentDetails"`
}

type channelListResponse struct {
	Items []channelItem `json:"items"`
}

type playlistListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title      string     `json:"title"`
			Thumbnails thumbnails `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			ItemCount int `json:"itemCount"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	PageInfo      struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
	Items []struct {
		Snippet struct {
			Title      string     `json:"title"`
			Thumbnails thumbnails `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID          string `json:"videoId"`
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// ResolveHandleToID resolves a channel handle such as "@name" to its channel id
func (c *Client) ResolveHandleToID(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", fmt.Errorf("%w: empty handle", models.ErrInvalidConfig)
	}
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}

	params := url.Values{}
	params.Set("part", "id")
	params.Set("forHandle", handle)

	var resp channelListResponse
	if err := c.doRequest(ctx, "channels", params, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve handle %s: %w", handle, err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("handle %s: %w", handle, models.ErrNotFound)
	}

	c.logger.WithFields(logrus.Fields{
		"handle":     handle,
		"channel_id": resp.Items[0].ID,
	}).Debug("Resolved channel handle")
	return resp.Items[0].ID, nil
}

// GetBasicInfo fetches title, thumbnail and video count of a channel or playlist
func (c *Client) GetBasicInfo(ctx context.Context, source models.Source) (models.BasicInfo, error) {
	id, err := c.externalID(ctx, source)
	if err != nil {
		return models.BasicInfo{}, err
	}

	switch source.Kind {
	case models.SourceKindRemoteChannel:
		ch, err := c.getChannel(ctx, id)
		if err != nil {
			return models.BasicInfo{}, err
		}
		count, _ := strconv.Atoi(ch.Statistics.VideoCount)
		return models.BasicInfo{
			ExternalID: ch.ID,
			Title:      ch.Snippet.Title,
			Thumbnail:  ch.Snippet.Thumbnails.best(),
			TotalCount: count,
		}, nil

	case models.SourceKindRemotePlaylist:
		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("id", id)

		var resp playlistListResponse
		if err := c.doRequest(ctx, "playlists", params, &resp); err != nil {
			return models.BasicInfo{}, fmt.Errorf("failed to get playlist %s: %w", id, err)
		}
		if len(resp.Items) == 0 {
			return models.BasicInfo{}, fmt.Errorf("playlist %s: %w", id, models.ErrNotFound)
		}
		pl := resp.Items[0]
		return models.BasicInfo{
			ExternalID: pl.ID,
			Title:      pl.Snippet.Title,
			Thumbnail:  pl.Snippet.Thumbnails.best(),
			TotalCount: pl.ContentDetails.ItemCount,
		}, nil
	}

	return models.BasicInfo{}, fmt.Errorf("%w: source %s is not remote", models.ErrInvalidConfig, source.ID)
}

// GetVideoPage fetches page (1-based) of a source's videos. The API pages by
// token, so page N walks the N-1 preceding pages first.
func (c *Client) GetVideoPage(ctx context.Context, source models.Source, page int) (models.VideoPage, error) {
	if page < 1 {
		page = 1
	}
	playlistID, err := c.uploadsPlaylist(ctx, source)
	if err != nil {
		return models.VideoPage{}, err
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", fmt.Sprint(maxResults))

	var resp playlistItemsResponse
	for current := 1; current <= page; current++ {
		resp = playlistItemsResponse{}
		if err := c.doRequest(ctx, "playlistItems", params, &resp); err != nil {
			return models.VideoPage{}, fmt.Errorf("failed to get playlist items of %s: %w", playlistID, err)
		}
		if current < page {
			if resp.NextPageToken == "" {
				return models.VideoPage{Videos: []models.VideoRecord{}, TotalCount: resp.PageInfo.TotalResults}, nil
			}
			params.Set("pageToken", resp.NextPageToken)
		}
	}

	offset := (page - 1) * maxResults
	videos := make([]models.VideoRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails.VideoID == "" {
			continue
		}
		video := models.VideoRecord{
			ID:        item.ContentDetails.VideoID,
			SourceID:  source.ID,
			Title:     item.Snippet.Title,
			Thumbnail: item.Snippet.Thumbnails.best(),
			URL:       "https://www.youtube.com/watch?v=" + item.ContentDetails.VideoID,
			Position:  offset + len(videos),
		}
		if t, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt); err == nil {
			video.PublishedAt = &t
		}
		videos = append(videos, video)
	}

	return models.VideoPage{Videos: videos, TotalCount: resp.PageInfo.TotalResults}, nil
}

// externalID returns the provider id of a source, resolving a handle when needed
func (c *Client) externalID(ctx context.Context, source models.Source) (string, error) {
	if source.Remote == nil {
		return "", fmt.Errorf("%w: source %s has no remote fields", models.ErrInvalidConfig, source.ID)
	}
	if id := source.ExternalID(); id != "" {
		return id, nil
	}
	if source.Kind == models.SourceKindRemoteChannel && source.Remote.Handle != "" {
		return c.ResolveHandleToID(ctx, source.Remote.Handle)
	}
	return "", fmt.Errorf("%w: source %s has no remote id", models.ErrInvalidConfig, source.ID)
}

// uploadsPlaylist returns the playlist listing a source's videos
func (c *Client) uploadsPlaylist(ctx context.Context, source models.Source) (string, error) {
	id, err := c.externalID(ctx, source)
	if err != nil {
		return "", err
	}
	if source.Kind == models.SourceKindRemotePlaylist {
		return id, nil
	}

	ch, err := c.getChannel(ctx, id)
	if err != nil {
		return "", err
	}
	if ch.ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("channel %s uploads: %w", id, models.ErrNotFound)
	}
	return ch.ContentDetails.RelatedPlaylists.Uploads, nil
}

func (c *Client) getChannel(ctx context.Context, id string) (*channelItem, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", id)

	var resp channelListResponse
	if err := c.doRequest(ctx, "channels", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", id, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel %s: %w", id, models.ErrNotFound)
	}
	return &resp.Items[0], nil
}
