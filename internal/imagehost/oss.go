package imagehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// OSS хранение картинок в бакете Aliyun OSS
type OSS struct {
	bucket     *oss.Bucket
	publicBase string
}

func NewOSS(endpoint, bucketName, accessKeyID, accessKeySecret, publicBase string) (*OSS, error) {
	if endpoint == "" || bucketName == "" || accessKeyID == "" || accessKeySecret == "" {
		return nil, errors.New("missing OSS config for aliyun provider")
	}
	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, err
	}
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.%s", bucketName, endpoint)
	}
	return &OSS{bucket: bucket, publicBase: publicBase}, nil
}

func (s *OSS) Upload(ctx context.Context, up Upload) (*Image, error) {
	id := uuid.NewString()
	key := JoinKey("images", id+extension(up))

	ct := storedContentType(up)
	opts := []oss.Option{oss.WithContext(ctx), oss.ContentType(ct)}
	if _, ok := rasterTypes[ct]; !ok {
		opts = append(opts, oss.ContentDisposition("attachment"))
	}
	if err := s.bucket.PutObject(key, bytes.NewReader(up.Data), opts...); err != nil {
		return nil, fmt.Errorf("%w: oss: %v", ErrUpstream, err)
	}
	return &Image{ID: id, URL: s.publicBase + "/" + key}, nil
}
