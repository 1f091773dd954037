package mediasvc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

const ossMaxDeleteBatch = 1000

type OSSStorage struct {
	bucket  *oss.Bucket
	baseURL string
	now     func() time.Time
}

var _ core.MediaStorage = (*OSSStorage)(nil) // interface compliance check

func NewOSSStorage(conf core.MediaConfig) (*OSSStorage, error) {
	if conf.OSSEndpoint == "" || conf.OSSAccessKeyID == "" || conf.OSSAccessKeySecret == "" || conf.OSSBucket == "" {
		return nil, errors.New("OSS endpoint, access key and bucket are required")
	}
	client, err := oss.New(conf.OSSEndpoint, conf.OSSAccessKeyID, conf.OSSAccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "creating OSS client")
	}
	bucket, err := client.Bucket(conf.OSSBucket)
	if err != nil {
		return nil, errors.Wrap(err, "opening OSS bucket")
	}

	baseURL := conf.BaseURL
	if baseURL == "" {
		end := strings.TrimPrefix(strings.TrimPrefix(conf.OSSEndpoint, "https://"), "http://")
		baseURL = fmt.Sprintf("https://%s.%s", conf.OSSBucket, end)
	}
	return &OSSStorage{bucket: bucket, baseURL: baseURL, now: time.Now}, nil
}

func (s *OSSStorage) Save(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := objectKey(folder, filename, s.now())
	err := s.bucket.PutObject(key, r,
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	)
	if err != nil {
		return "", errors.Wrap(err, "uploading object")
	}
	return key, nil
}

func (s *OSSStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	key, err := cleanKey(path)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.GetObject(key, oss.WithContext(ctx))
	return body, errors.Wrap(err, "downloading object")
}

// Delete removes the objects at paths; OSS ignores missing keys.
func (s *OSSStorage) Delete(ctx context.Context, paths ...string) error {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		key, err := cleanKey(p)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	for start := 0; start < len(keys); start += ossMaxDeleteBatch {
		end := start + ossMaxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		if _, err := s.bucket.DeleteObjects(keys[start:end], oss.WithContext(ctx), oss.DeleteObjectsQuiet(true)); err != nil {
			return errors.Wrap(err, "deleting objects")
		}
	}
	return nil
}

func (s *OSSStorage) URL(path string) string {
	return joinURL(s.baseURL, path)
}
