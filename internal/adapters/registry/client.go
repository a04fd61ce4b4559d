// Package registry pushes artifact sets to an S3-compatible object store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.RegistryClient = (*Client)(nil)

// versionPattern matches the version path segment of an artifact key.
var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)$`)

// contentTypes maps artifact file names to their upload content types.
var contentTypes = map[string]string{
	domain.ManifestFileName: "application/x-yaml",
	domain.LockfileName:     "application/json",
	domain.ImageFileName:    "application/octet-stream",
	domain.ModuleFileName:   "text/plain",
}

// objectAPI is the slice of the minio client the registry client uses.
type objectAPI interface {
	FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Options configure the registry client's bucket and retry policy.
type Options struct {
	Bucket     string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client uploads artifact sets to an S3-compatible object store. Transient
// upload failures are retried with bounded exponential backoff; the first
// terminal failure skips the remaining files of the set.
type Client struct {
	api    objectAPI
	logger ports.Logger
	opts   Options
}

// NewClient creates a registry client on top of a minio object store client.
func NewClient(api *minio.Client, logger ports.Logger, opts Options) *Client {
	return newClient(api, logger, opts)
}

func newClient(api objectAPI, logger ports.Logger, opts Options) *Client {
	return &Client{api: api, logger: logger, opts: opts}
}

// Push uploads every file of the set in order.
func (c *Client) Push(ctx context.Context, set domain.ArtifactSet) (domain.PushResult, error) {
	files := set.Files()
	result := domain.PushResult{Uploads: make([]domain.Upload, 0, len(files))}

	failedIdx := -1
	for i, file := range files {
		key := domain.ArtifactKey(set.Environment, set.Version, file.Name)
		if failedIdx >= 0 {
			result.Uploads = append(result.Uploads, domain.Upload{
				Name:  file.Name,
				Key:   key,
				State: domain.UploadStateSkipped,
			})
			continue
		}

		attempts, err := c.upload(ctx, key, file)
		if err != nil {
			failedIdx = i
			result.Uploads = append(result.Uploads, domain.Upload{
				Name:     file.Name,
				Key:      key,
				State:    domain.UploadStateFailed,
				Attempts: attempts,
				Error:    err.Error(),
			})
			continue
		}

		result.Uploads = append(result.Uploads, domain.Upload{
			Name:     file.Name,
			Key:      key,
			State:    domain.UploadStateCompleted,
			Attempts: attempts,
		})
	}

	if failedIdx >= 0 {
		failed := result.Uploads[failedIdx]
		pushErr := zerr.With(domain.ErrPush, "environment", set.Environment)
		pushErr = zerr.With(pushErr, "key", failed.Key)
		return result, zerr.With(pushErr, "cause", failed.Error)
	}

	result.Ref = fmt.Sprintf("s3://%s/%s", c.opts.Bucket,
		path.Join(domain.ArtifactRootPrefix, set.Environment, set.Version))
	return result, nil
}

// upload stores one file under the given key, retrying transient failures
// until the retry budget is exhausted. It returns the number of attempts
// made.
func (c *Client) upload(ctx context.Context, key string, file domain.Artifact) (int, error) {
	delay := c.opts.BaseDelay

	for attempt := 1; ; attempt++ {
		_, err := c.api.FPutObject(ctx, c.opts.Bucket, key, file.Path, minio.PutObjectOptions{
			ContentType: contentTypes[file.Name],
		})
		if err == nil {
			return attempt, nil
		}

		if !transient(err) || attempt > c.opts.MaxRetries || ctx.Err() != nil {
			return attempt, zerr.With(zerr.Wrap(err, "upload failed"), "key", key)
		}

		c.logger.Warn(fmt.Sprintf("upload of %s failed, retrying in %s: %v", key, delay, err))
		select {
		case <-ctx.Done():
			return attempt, zerr.With(zerr.Wrap(ctx.Err(), "upload cancelled"), "key", key)
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.opts.MaxDelay {
			delay = c.opts.MaxDelay
		}
	}
}

// NextVersion derives the next artifact version for an environment from the
// versions already pushed: the major component of the highest existing
// version is bumped and the minor component reset. An environment's first
// push gets "1.0".
func (c *Client) NextVersion(ctx context.Context, environment string) (string, error) {
	prefix := domain.ArtifactPrefix(environment)

	highest := -1
	for obj := range c.api.ListObjects(ctx, c.opts.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return "", zerr.With(zerr.Wrap(obj.Err, "failed to list environment versions"), "prefix", prefix)
		}

		segment, _, found := strings.Cut(strings.TrimPrefix(obj.Key, prefix), "/")
		if !found {
			continue
		}
		m := versionPattern.FindStringSubmatch(segment)
		if m == nil {
			continue
		}

		major, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if major > highest {
			highest = major
		}
	}

	if highest < 0 {
		return "1.0", nil
	}
	return fmt.Sprintf("%d.0", highest+1), nil
}

// transient reports whether an upload error is worth retrying. Server-side
// errors, throttling, and network timeouts are retried; authorization and
// other client errors are not.
func transient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	resp := minio.ToErrorResponse(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		return true
	}
	switch resp.Code {
	case "SlowDown", "RequestTimeout":
		return true
	}
	return false
}
