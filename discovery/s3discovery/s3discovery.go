// Package s3discovery implements core.Discovery over an S3-compatible
// object store, grounded on merge/service/merge_service_s3.go's
// minio.ListObjects paging loop.
package s3discovery

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ayudhien/erddap/core"
)

// S3Config names the bucket/prefix and credentials of an S3-compatible
// endpoint, matching the teacher's s3Config fields.
type S3Config struct {
	URL    string
	Key    string
	Secret string
	Secure bool
	Region string
	Bucket string
	Prefix string
}

// S3 discovers files under Prefix matching NameRegex, paging through
// ListObjects the way the teacher's s3MergeService.GetFilesToMerge does.
type S3 struct {
	S3Config
	NameRegex string
}

func (s *S3) Scan(ctx context.Context) ([]core.DiscoveryResult, error) {
	re, err := regexp.Compile(s.NameRegex)
	if err != nil {
		return nil, fmt.Errorf("fileNameRegex %q: %w", s.NameRegex, err)
	}

	client, err := minio.New(s.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(s.Key, s.Secret, ""),
		Secure: s.Secure,
		Region: s.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 discovery client: %w", err)
	}

	var out []core.DiscoveryResult
	startAfter := ""
	for {
		last := ""
		for obj := range client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{
			Prefix:     s.Prefix,
			MaxKeys:    1000,
			StartAfter: startAfter,
		}) {
			if obj.Err != nil {
				return nil, fmt.Errorf("s3 list objects: %w", obj.Err)
			}
			name := path.Base(obj.Key)
			if !re.MatchString(name) {
				last = obj.Key
				continue
			}
			dir := strings.TrimSuffix(obj.Key, name)
			out = append(out, core.DiscoveryResult{
				Dir:          dir,
				Name:         name,
				LastModified: float64(obj.LastModified.UnixMilli()),
			})
			last = obj.Key
		}
		if last == "" || last == startAfter {
			break
		}
		startAfter = last
	}
	return out, nil
}
