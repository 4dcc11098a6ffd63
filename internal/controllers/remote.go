package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/tubenest/internal/metrics"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// RemoteCatalog is the remote metadata API the engine reads channels and playlists from
type RemoteCatalog interface {
	GetBasicInfo(ctx context.Context, source models.Source) (models.BasicInfo, error)
	GetVideoPage(ctx context.Context, source models.Source, page int) (models.VideoPage, error)
	ResolveHandleToID(ctx context.Context, handle string) (string, error)
}

// RemoteOptions bounds every remote call
type RemoteOptions struct {
	Timeout  time.Duration // per attempt
	Retries  int           // extra attempts for transient failures
	Interval time.Duration // initial backoff interval
}

// remoteCaller wraps a RemoteCatalog with per-call timeouts and bounded retries
type remoteCaller struct {
	client  RemoteCatalog
	opts    RemoteOptions
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func newRemoteCaller(client RemoteCatalog, opts RemoteOptions, m *metrics.Metrics, logger *logrus.Logger) *remoteCaller {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	return &remoteCaller{client: client, opts: opts, metrics: m, logger: logger}
}

// do runs fn until it succeeds, fails permanently or the retries run out.
// A timed out attempt counts as a transient failure. Quota errors are never retried.
func (r *remoteCaller) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r.client == nil {
		return models.ErrAPIUnavailable
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.opts.Interval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.opts.Retries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			r.metrics.RemoteCall(op, "ok")
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s timed out after %s", models.ErrTransient, op, r.opts.Timeout)
		}

		if !models.IsRetryable(err) {
			if errors.Is(err, models.ErrQuotaExceeded) {
				r.metrics.RemoteCall(op, "quota")
			} else {
				r.metrics.RemoteCall(op, "error")
			}
			return backoff.Permanent(err)
		}

		r.metrics.RemoteCall(op, "retry")
		r.logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).WithError(err).Debug("Remote call failed, retrying")
		return err
	}, b)

	return err
}

func (r *remoteCaller) basicInfo(ctx context.Context, source models.Source) (models.BasicInfo, error) {
	var info models.BasicInfo
	err := r.do(ctx, "basic_info", func(ctx context.Context) error {
		var err error
		info, err = r.client.GetBasicInfo(ctx, source)
		return err
	})
	return info, err
}

func (r *remoteCaller) videoPage(ctx context.Context, source models.Source, page int) (models.VideoPage, error) {
	var result models.VideoPage
	err := r.do(ctx, "video_page", func(ctx context.Context) error {
		var err error
		result, err = r.client.GetVideoPage(ctx, source, page)
		return err
	})
	return result, err
}

func (r *remoteCaller) resolveHandle(ctx context.Context, handle string) (string, error) {
	var id string
	err := r.do(ctx, "resolve_handle", func(ctx context.Context) error {
		var err error
		id, err = r.client.ResolveHandleToID(ctx, handle)
		return err
	})
	return id, err
}
