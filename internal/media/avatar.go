// Package media turns stored avatar references into URLs a browser can load.
package media

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	jww "github.com/spf13/jwalterweatherman"
)

// AvatarResolver maps a stored avatar reference to a displayable URL. It never
// fails; unusable references resolve to the default avatar.
type AvatarResolver interface {
	Resolve(ctx context.Context, ref string) string
}

func isDirect(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "images/") || strings.HasPrefix(ref, "/")
}

type staticResolver struct {
	fallback string
}

// NewStaticResolver passes references through unchanged and substitutes
// fallback for empty ones.
func NewStaticResolver(fallback string) AvatarResolver {
	return &staticResolver{fallback: fallback}
}

func (r *staticResolver) Resolve(_ context.Context, ref string) string {
	if ref == "" {
		return r.fallback
	}
	return ref
}

// urlSigner is the slice of *storage.BucketHandle the resolver uses.
type urlSigner interface {
	SignedURL(object string, opts *storage.SignedURLOptions) (string, error)
}

type bucketResolver struct {
	bucket   urlSigner
	ttl      time.Duration
	fallback string
	now      func() time.Time
}

// NewBucketResolver signs object paths in bucket with a short-lived V4 URL.
// Absolute URLs and bundled asset paths are returned as is.
func NewBucketResolver(bucket *storage.BucketHandle, ttl time.Duration, fallback string) AvatarResolver {
	return newBucketResolver(bucket, ttl, fallback)
}

func newBucketResolver(bucket urlSigner, ttl time.Duration, fallback string) *bucketResolver {
	return &bucketResolver{bucket: bucket, ttl: ttl, fallback: fallback, now: time.Now}
}

func (r *bucketResolver) Resolve(_ context.Context, ref string) string {
	if ref == "" {
		return r.fallback
	}
	if isDirect(ref) {
		return ref
	}
	u, err := r.bucket.SignedURL(ref, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: r.now().Add(r.ttl),
	})
	if err != nil {
		jww.WARN.Printf("[media] signing avatar %s failed: %+v", ref, err)
		return r.fallback
	}
	return u
}
