package media

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	opts *storage.SignedURLOptions
	err  error
}

func (f *fakeSigner) SignedURL(object string, opts *storage.SignedURLOptions) (string, error) {
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return "https://signed.example/" + object, nil
}

func TestBucketResolver(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	signer := &fakeSigner{}
	r := newBucketResolver(signer, 10*time.Minute, "images/deniM.png")
	r.now = func() time.Time { return now }
	ctx := context.Background()

	require.Equal(t, "images/deniM.png", r.Resolve(ctx, ""))
	require.Equal(t, "https://cdn.example/a.png", r.Resolve(ctx, "https://cdn.example/a.png"))
	require.Nil(t, signer.opts)

	require.Equal(t, "https://signed.example/avatars/u1.png", r.Resolve(ctx, "avatars/u1.png"))
	require.Equal(t, http.MethodGet, signer.opts.Method)
	require.Equal(t, storage.SigningSchemeV4, signer.opts.Scheme)
	require.Equal(t, now.Add(10*time.Minute), signer.opts.Expires)

	signer.err = errors.New("no credentials")
	require.Equal(t, "images/deniM.png", r.Resolve(ctx, "avatars/u2.png"))
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver("images/deniM.png")
	require.Equal(t, "images/deniM.png", r.Resolve(context.Background(), ""))
	require.Equal(t, "avatars/u1.png", r.Resolve(context.Background(), "avatars/u1.png"))
}
