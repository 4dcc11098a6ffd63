package controllers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amaumene/tubenest/internal/metrics"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/scanner"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const tracerName = "github.com/amaumene/tubenest/internal/controllers"

// SourceWithVideos is one source as shown in the catalog
type SourceWithVideos struct {
	ID              string               `json:"id"`
	Kind            models.SourceKind    `json:"kind"`
	Title           string               `json:"title"`
	Thumbnail       string               `json:"thumbnail,omitempty"`
	VideoCount      int                  `json:"video_count"`
	Videos          []models.VideoRecord `json:"videos"`
	Pagination      Pagination           `json:"pagination"`
	UsingCachedData bool                 `json:"using_cached_data"`
	FetchedNewData  bool                 `json:"fetched_new_data"`
	Error           string               `json:"error,omitempty"`
}

// SourceError records the failure of one source without failing the whole pass.
// Errors that span several sources, such as a failed batch write, have no SourceID.
type SourceError struct {
	SourceID string
	Stage    string
	Err      error
}

func (e *SourceError) Error() string {
	if e.SourceID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("source %s (%s): %v", e.SourceID, e.Stage, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Catalog is the result of one aggregation pass, owned by the caller
type Catalog struct {
	Sources []SourceWithVideos
	Errors  []*SourceError
}

// Videos returns the videos of every source, in catalog order
func (c *Catalog) Videos() []models.VideoRecord {
	var out []models.VideoRecord
	for _, s := range c.Sources {
		out = append(out, s.Videos...)
	}
	return out
}

// CatalogOptions tunes the aggregator
type CatalogOptions struct {
	Concurrency    int
	MaxPages       int
	LocalCountTTL  time.Duration
	SortByTitle    bool
	Remote         RemoteOptions
	TracerProvider trace.TracerProvider
}

// CatalogController aggregates remote, local and derived sources into one catalog
type CatalogController struct {
	store   models.Store
	remote  *remoteCaller
	batch   *BatchCacheLoader
	scanner *scanner.Scanner
	counts  *cache.Cache
	metrics *metrics.Metrics
	tracer  trace.Tracer
	opts    CatalogOptions
	now     func() time.Time
	logger  *logrus.Logger
}

// NewCatalogController creates a new catalog controller
func NewCatalogController(store models.Store, remote RemoteCatalog, scan *scanner.Scanner, m *metrics.Metrics, opts CatalogOptions, logger *logrus.Logger) *CatalogController {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.LocalCountTTL <= 0 {
		opts.LocalCountTTL = 5 * time.Minute
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &CatalogController{
		store:   store,
		remote:  newRemoteCaller(remote, opts.Remote, m, logger),
		batch:   NewBatchCacheLoader(store, logger),
		scanner: scan,
		counts:  cache.New(opts.LocalCountTTL, 2*opts.LocalCountTTL),
		metrics: m,
		tracer:  tp.Tracer(tracerName),
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// sourceResult is the outcome of loading one source during LoadAll
type sourceResult struct {
	view    SourceWithVideos
	fetched bool
	patch   models.SourcePatch
	err     *SourceError
}

// LoadAll loads every configured source. Remote sources come from the cache
// when possible; only sources fetched live in this pass are persisted. A
// cancelled context yields the sources that completed along with ctx.Err().
func (c *CatalogController) LoadAll(ctx context.Context, apiAvailable bool) (*Catalog, error) {
	start := time.Now()
	defer c.metrics.CatalogLoaded(start)

	ctx, span := c.tracer.Start(ctx, "catalog.LoadAll", trace.WithAttributes(
		attribute.Bool("api_available", apiAvailable),
	))
	defer span.End()

	sources, err := c.store.ListSources(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	cached, err := c.batch.BatchLoadBasicInfo(ctx, sources)
	if err != nil {
		c.logger.WithError(err).Warn("Batch cache load failed, loading sources individually")
		cached = map[string]CacheEntry{}
	}

	results := make([]*sourceResult, len(sources))
	p := pool.New().WithMaxGoroutines(c.opts.Concurrency)
	for i, source := range sources {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			results[i] = c.loadSource(ctx, source, cached, apiAvailable)
		})
	}
	p.Wait()

	catalog := &Catalog{Sources: make([]SourceWithVideos, 0, len(sources))}
	var patches []models.SourcePatch
	var fresh []models.VideoRecord
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.err != nil && ctx.Err() != nil && isContextErr(r.err) {
			continue
		}
		catalog.Sources = append(catalog.Sources, r.view)
		if r.err != nil {
			catalog.Errors = append(catalog.Errors, r.err)
		}
		if r.fetched {
			patches = append(patches, r.patch)
			fresh = append(fresh, r.view.Videos...)
		}
	}

	if len(patches) > 0 {
		if err := c.persist(context.WithoutCancel(ctx), patches, fresh); err != nil {
			ids := make([]string, 0, len(patches))
			for _, p := range patches {
				ids = append(ids, p.ID)
			}
			c.logger.WithError(err).WithField("sources", ids).Error("Failed to persist fetched sources")
			catalog.Errors = append(catalog.Errors, &SourceError{Stage: "persist", Err: err})
		}
	}

	if c.opts.SortByTitle {
		sortByTitle(catalog.Sources)
	}

	span.SetAttributes(
		attribute.Int("sources", len(catalog.Sources)),
		attribute.Int("errors", len(catalog.Errors)),
		attribute.Int("fetched", len(patches)),
	)
	c.logger.WithFields(logrus.Fields{
		"sources": len(catalog.Sources),
		"errors":  len(catalog.Errors),
		"fetched": len(patches),
	}).Info("Catalog loaded")

	if err := ctx.Err(); err != nil {
		return catalog, err
	}
	return catalog, nil
}

func (c *CatalogController) loadSource(ctx context.Context, source models.Source, cached map[string]CacheEntry, apiAvailable bool) *sourceResult {
	var r *sourceResult
	switch {
	case source.Kind.IsRemote():
		r = c.loadRemote(ctx, source, cached, apiAvailable)
	case source.Kind == models.SourceKindLocalTree:
		r = c.loadLocal(ctx, source)
	case source.Kind == models.SourceKindDerived:
		r = c.loadDerivedSummary(ctx, source)
	default:
		r = c.failed(source, "config", fmt.Errorf("%w: unknown kind %q", models.ErrInvalidConfig, source.Kind))
	}

	result := "ok"
	switch {
	case r.err != nil:
		result = "error"
		c.logger.WithFields(logrus.Fields{
			"source_id": source.ID,
			"stage":     r.err.Stage,
		}).WithError(r.err.Err).Warn("Failed to load source")
	case r.view.UsingCachedData:
		result = "cached"
	}
	c.metrics.SourceLoaded(string(source.Kind), result)
	return r
}

// loadRemote serves a remote source from the batch cache, falling back to a
// live fetch of the basic info and first page
func (c *CatalogController) loadRemote(ctx context.Context, source models.Source, cached map[string]CacheEntry, apiAvailable bool) *sourceResult {
	if entry, ok := cached[source.ID]; ok {
		return &sourceResult{view: c.remoteView(source, entry)}
	}
	if err := source.Validate(); err != nil {
		return c.failed(source, "config", err)
	}
	if !apiAvailable {
		return c.failed(source, "remote", models.ErrAPIUnavailable)
	}

	info, err := c.remote.basicInfo(ctx, source)
	if err != nil {
		return c.failed(source, "basic_info", err)
	}
	if info.ExternalID != "" {
		remote := *source.Remote
		remote.ExternalID = info.ExternalID
		source.Remote = &remote
	}
	page, err := c.remote.videoPage(ctx, source, 1)
	if err != nil {
		return c.failed(source, "video_page", err)
	}

	total := info.TotalCount
	if total == 0 {
		total = page.TotalCount
	}
	title := source.Title
	if title == "" {
		title = info.Title
		source.Title = info.Title
	}

	videos := make([]models.VideoRecord, len(page.Videos))
	for i, v := range page.Videos {
		videos[i] = tagVideo(v, source)
	}
	entry := CacheEntry{
		SourceID:       source.ID,
		Title:          title,
		Thumbnail:      info.Thumbnail,
		Videos:         videos,
		TotalVideos:    total,
		FetchedNewData: true,
	}

	now := c.now().UTC()
	patch := models.SourcePatch{
		ID:              source.ID,
		Thumbnail:       models.StringPtr(info.Thumbnail),
		TotalVideoCount: models.IntPtr(total),
		LastRefreshedAt: &now,
	}
	if info.ExternalID != "" {
		patch.ExternalID = models.StringPtr(info.ExternalID)
	}
	if source.Title != "" {
		patch.Title = models.StringPtr(source.Title)
	}

	return &sourceResult{view: c.remoteView(source, entry), fetched: true, patch: patch}
}

func (c *CatalogController) remoteView(source models.Source, entry CacheEntry) SourceWithVideos {
	title := entry.Title
	if title == "" {
		title = source.Title
	}
	return SourceWithVideos{
		ID:              source.ID,
		Kind:            source.Kind,
		Title:           title,
		Thumbnail:       entry.Thumbnail,
		VideoCount:      entry.TotalVideos,
		Videos:          entry.Videos,
		Pagination:      NewPagination(entry.TotalVideos, 1, c.opts.MaxPages),
		UsingCachedData: entry.UsingCachedData,
		FetchedNewData:  entry.FetchedNewData,
	}
}

// loadLocal only counts a local tree; listing is deferred to LoadOne
func (c *CatalogController) loadLocal(ctx context.Context, source models.Source) *sourceResult {
	count, err := c.localCount(ctx, source)
	if err != nil {
		return c.failed(source, "local_count", err)
	}
	return &sourceResult{view: SourceWithVideos{
		ID:         source.ID,
		Kind:       source.Kind,
		Title:      source.Title,
		Thumbnail:  source.Thumbnail,
		VideoCount: count,
		Videos:     []models.VideoRecord{},
		Pagination: NewPagination(count, 1, c.opts.MaxPages),
	}}
}

// localCount returns the memoised video count of a local source
func (c *CatalogController) localCount(ctx context.Context, source models.Source) (int, error) {
	if err := source.Validate(); err != nil {
		return 0, err
	}
	if v, ok := c.counts.Get(source.ID); ok {
		return v.(int), nil
	}
	count, err := c.scanner.CountRecursively(ctx, source.Local.RootPath, source.Local.MaxDepth)
	if err != nil {
		return 0, err
	}
	c.counts.Set(source.ID, count, cache.DefaultExpiration)
	return count, nil
}

// InvalidateLocalCount forgets the memoised count of a local source
func (c *CatalogController) InvalidateLocalCount(sourceID string) {
	c.counts.Delete(sourceID)
}

func (c *CatalogController) loadDerivedSummary(ctx context.Context, source models.Source) *sourceResult {
	view, err := c.derivedPage(ctx, source, 1)
	if err != nil {
		return c.failed(source, "derived", err)
	}
	return &sourceResult{view: *view}
}

// derivedPage joins the visible entries of a derived list with persisted video metadata
func (c *CatalogController) derivedPage(ctx context.Context, source models.Source, page int) (*SourceWithVideos, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	entries, err := c.store.ListDerived(ctx, source.Derived.List)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries: %w", source.Derived.List, err)
	}

	visible := entries[:0]
	for _, e := range entries {
		if e.Visible() {
			visible = append(visible, e)
		}
	}

	start, end := pageBounds(page, len(visible))
	paged := visible[start:end]
	keys := make([]string, len(paged))
	for i, e := range paged {
		keys[i] = models.VideoKey(e.SourceID, e.VideoID)
	}
	stored, err := c.store.GetVideos(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to join derived videos: %w", err)
	}

	videos := make([]models.VideoRecord, 0, len(paged))
	for i, e := range paged {
		video, ok := stored[keys[i]]
		if !ok {
			video = models.VideoRecord{
				ID:        e.VideoID,
				Title:     e.Title,
				Thumbnail: e.Thumbnail,
				URL:       e.URL,
				Path:      e.Path,
			}
		}
		video.Position = start + i
		videos = append(videos, tagVideo(video, source))
	}

	return &SourceWithVideos{
		ID:         source.ID,
		Kind:       source.Kind,
		Title:      source.Title,
		Thumbnail:  source.Thumbnail,
		VideoCount: len(visible),
		Videos:     videos,
		Pagination: NewPagination(len(visible), page, c.opts.MaxPages),
	}, nil
}

// failed builds the zero-video placeholder of a source that could not be loaded
func (c *CatalogController) failed(source models.Source, stage string, err error) *sourceResult {
	return &sourceResult{
		view: SourceWithVideos{
			ID:         source.ID,
			Kind:       source.Kind,
			Title:      source.Title,
			Thumbnail:  source.Thumbnail,
			Videos:     []models.VideoRecord{},
			Pagination: NewPagination(0, 1, c.opts.MaxPages),
			Error:      err.Error(),
		},
		err: &SourceError{SourceID: source.ID, Stage: stage, Err: err},
	}
}

// persist writes the cache fields and first pages of freshly fetched sources in one transaction
func (c *CatalogController) persist(ctx context.Context, patches []models.SourcePatch, videos []models.VideoRecord) error {
	written := 0
	err := c.store.Update(ctx, func(tx models.Tx) error {
		for _, p := range patches {
			if err := tx.UpsertSource(p); err != nil {
				return fmt.Errorf("failed to update source %s: %w", p.ID, err)
			}
		}
		n, err := tx.UpsertVideos(videos)
		if err != nil {
			return fmt.Errorf("failed to upsert videos: %w", err)
		}
		written = n
		return nil
	})
	if err != nil {
		return err
	}

	c.metrics.Upserted(written)
	c.logger.WithFields(logrus.Fields{
		"sources": len(patches),
		"videos":  written,
	}).Debug("Persisted fetched sources")
	return nil
}

// LoadOne loads one page of a source. Remote sources are always fetched live,
// falling back to the stored page when the call fails. Pages past MaxPages
// are rejected before any store or remote call.
func (c *CatalogController) LoadOne(ctx context.Context, sourceID string, page int) (*SourceWithVideos, error) {
	if page < 1 {
		page = 1
	}
	if c.opts.MaxPages > 0 && page > c.opts.MaxPages {
		return nil, fmt.Errorf("%w: page %d beyond the %d page limit", models.ErrInvalidConfig, page, c.opts.MaxPages)
	}
	ctx, span := c.tracer.Start(ctx, "catalog.LoadOne", trace.WithAttributes(
		attribute.String("source.id", sourceID),
		attribute.Int("page", page),
	))
	defer span.End()

	source, err := c.store.GetSource(ctx, sourceID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get source %s: %w", sourceID, err)
	}

	var view *SourceWithVideos
	switch {
	case source.Kind.IsRemote():
		view, err = c.loadRemotePage(ctx, *source, page)
	case source.Kind == models.SourceKindLocalTree:
		view, err = c.loadLocalPage(ctx, *source, page)
	case source.Kind == models.SourceKindDerived:
		view, err = c.derivedPage(ctx, *source, page)
	default:
		err = fmt.Errorf("%w: unknown kind %q", models.ErrInvalidConfig, source.Kind)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return view, nil
}

func (c *CatalogController) loadRemotePage(ctx context.Context, source models.Source, page int) (*SourceWithVideos, error) {
	result, err := c.remote.videoPage(ctx, source, page)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"source_id": source.ID,
			"page":      page,
		}).WithError(err).Warn("Live page fetch failed, serving stored page")
		return c.storedRemotePage(ctx, source, page, err)
	}

	videos := make([]models.VideoRecord, len(result.Videos))
	for i, v := range result.Videos {
		videos[i] = tagVideo(v, source)
	}
	written, err := c.store.BatchUpsertVideos(ctx, videos)
	if err != nil {
		c.logger.WithError(err).WithField("source_id", source.ID).Error("Failed to persist fetched page")
	}
	c.metrics.Upserted(written)

	total := source.TotalVideoCount
	if total == 0 {
		total = result.TotalCount
	}
	return &SourceWithVideos{
		ID:             source.ID,
		Kind:           source.Kind,
		Title:          source.Title,
		Thumbnail:      source.Thumbnail,
		VideoCount:     total,
		Videos:         videos,
		Pagination:     NewPagination(total, page, c.opts.MaxPages),
		FetchedNewData: true,
	}, nil
}

func (c *CatalogController) storedRemotePage(ctx context.Context, source models.Source, page int, cause error) (*SourceWithVideos, error) {
	stored, total, err := c.store.GetVideosBySource(ctx, source.ID, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored page: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("failed to load source %s: %w", source.ID, cause)
	}

	videos := make([]models.VideoRecord, len(stored))
	for i, v := range stored {
		videos[i] = tagVideo(v, source)
	}
	count := source.TotalVideoCount
	if count == 0 {
		count = total
	}
	return &SourceWithVideos{
		ID:              source.ID,
		Kind:            source.Kind,
		Title:           source.Title,
		Thumbnail:       source.Thumbnail,
		VideoCount:      count,
		Videos:          videos,
		Pagination:      NewPagination(count, page, c.opts.MaxPages),
		UsingCachedData: true,
		Error:           cause.Error(),
	}, nil
}

func (c *CatalogController) loadLocalPage(ctx context.Context, source models.Source, page int) (*SourceWithVideos, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	all, err := c.ScanLocalFolder(ctx, source.Local.RootPath, source.Local.MaxDepth)
	if err != nil {
		return nil, err
	}
	c.counts.Set(source.ID, len(all), cache.DefaultExpiration)

	start, end := pageBounds(page, len(all))
	videos := make([]models.VideoRecord, 0, end-start)
	for _, v := range all[start:end] {
		videos = append(videos, tagVideo(v, source))
	}

	written, err := c.store.BatchUpsertVideos(ctx, videos)
	if err != nil {
		c.logger.WithError(err).WithField("source_id", source.ID).Error("Failed to persist local videos")
	}
	c.metrics.Upserted(written)

	return &SourceWithVideos{
		ID:         source.ID,
		Kind:       source.Kind,
		Title:      source.Title,
		Thumbnail:  source.Thumbnail,
		VideoCount: len(all),
		Videos:     videos,
		Pagination: NewPagination(len(all), page, c.opts.MaxPages),
	}, nil
}

// ScanLocalFolder lists every video below path with duplicates suppressed
func (c *CatalogController) ScanLocalFolder(ctx context.Context, path string, maxDepth int) ([]models.VideoRecord, error) {
	videos, err := c.scanner.Scan(ctx, path, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	filtered := scanner.Filter(videos)
	for i := range filtered {
		filtered[i].Position = i
	}
	return filtered, nil
}

// BrowseFolder lists the folders and videos visible at path when it sits at depth
func (c *CatalogController) BrowseFolder(ctx context.Context, path string, maxDepth, depth int) ([]scanner.Folder, []models.VideoRecord, error) {
	folders, videos, err := c.scanner.ContentsAt(ctx, path, maxDepth, depth)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to browse %s: %w", path, err)
	}
	filtered := scanner.Filter(videos)
	for i := range filtered {
		filtered[i].Position = i
	}
	return folders, filtered, nil
}

// CountVideosInFolder counts the videos ScanLocalFolder would list
func (c *CatalogController) CountVideosInFolder(ctx context.Context, path string, maxDepth int) (int, error) {
	count, err := c.scanner.CountRecursively(ctx, path, maxDepth)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", path, err)
	}
	return count, nil
}

// RecordDerived stores a user action such as a finished download or a wishlist decision
func (c *CatalogController) RecordDerived(ctx context.Context, entry models.DerivedEntry) error {
	if !entry.List.Valid() {
		return fmt.Errorf("%w: unknown list %q", models.ErrInvalidConfig, entry.List)
	}
	if entry.VideoID == "" {
		return fmt.Errorf("%w: video id is required", models.ErrInvalidConfig)
	}
	if !entry.Status.Valid() || (entry.Status != "" && entry.List != models.DerivedListWishlist) {
		return fmt.Errorf("%w: invalid status %q for %s", models.ErrInvalidConfig, entry.Status, entry.List)
	}
	if err := c.store.PutDerived(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s entry: %w", entry.List, err)
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sortByTitle orders sources by title using locale-aware collation
func sortByTitle(sources []SourceWithVideos) {
	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(sources, func(i, j int) bool {
		return col.CompareString(sources[i].Title, sources[j].Title) < 0
	})
}
