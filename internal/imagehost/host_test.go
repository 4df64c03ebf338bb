package imagehost

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("image/png", 1024))
	assert.NoError(t, Validate("IMAGE/JPEG", MaxFileSize))
	assert.ErrorIs(t, Validate("text/plain", 10), ErrNotImage)
	assert.ErrorIs(t, Validate("", 10), ErrNotImage)
	assert.ErrorIs(t, Validate("image/png", MaxFileSize+1), ErrTooLarge)
}

func TestVariantURL(t *testing.T) {
	assert.Equal(t, "https://imagedelivery.net/hash/img-1/public", VariantURL("hash", "img-1", ""))
	assert.Equal(t, "https://imagedelivery.net/hash/img-1/thumb", VariantURL("hash", "img-1", "thumb"))
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "images/a.png", JoinKey("/images/", "/a.png"))
	assert.Equal(t, "a.png", JoinKey("", "a.png"))
}

func newCloudflare(t *testing.T, handler http.HandlerFunc) *Cloudflare {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewCloudflare("acct", "token", "hash")
	c.apiBase = srv.URL
	return c
}

func TestCloudflareUpload(t *testing.T) {
	c := newCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acct/images/v1", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "avatar.png", fh.Filename)
		assert.Equal(t, "png-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"result":{"id":"img-1","variants":["https://imagedelivery.net/hash/img-1/public"]}}`)
	})

	img, err := c.Upload(context.Background(), Upload{Filename: "avatar.png", ContentType: "image/png", Data: []byte("png-bytes")})
	require.NoError(t, err)
	assert.Equal(t, &Image{ID: "img-1", URL: "https://imagedelivery.net/hash/img-1/public"}, img)
}

func TestCloudflareUploadFallsBackToVariantURL(t *testing.T) {
	c := newCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"result":{"id":"img-2","variants":[]}}`)
	})

	img, err := c.Upload(context.Background(), Upload{Filename: "a.png", ContentType: "image/png", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "https://imagedelivery.net/hash/img-2/public", img.URL)
}

func TestCloudflareUploadFailures(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		c := newCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		})
		_, err := c.Upload(context.Background(), Upload{Filename: "a.png", ContentType: "image/png", Data: []byte("x")})
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("success false", func(t *testing.T) {
		c := newCloudflare(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"success":false,"errors":[{"code":5400,"message":"bad image"}]}`)
		})
		_, err := c.Upload(context.Background(), Upload{Filename: "a.png", ContentType: "image/png", Data: []byte("x")})
		assert.ErrorIs(t, err, ErrUpstream)
		assert.True(t, strings.Contains(err.Error(), "bad image"))
	})
}

func TestLocalUpload(t *testing.T) {
	dir := t.TempDir()
	host, err := NewLocal(dir, "http://localhost:8080/")
	require.NoError(t, err)

	img, err := host.Upload(context.Background(), Upload{Filename: "me.JPG", ContentType: "image/jpeg", Data: []byte("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/images/"+img.ID+".jpg", img.URL)

	data, err := os.ReadFile(filepath.Join(dir, img.ID+".jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestLocalUploadIgnoresClientExtension(t *testing.T) {
	dir := t.TempDir()
	host, err := NewLocal(dir, "http://localhost:8080")
	require.NoError(t, err)

	img, err := host.Upload(context.Background(), Upload{Filename: "x.html", ContentType: "image/png", Data: []byte("<script>alert(1)</script>")})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(img.URL, "/images/"+img.ID+".png"))
	_, err = os.Stat(filepath.Join(dir, img.ID+".png"))
	require.NoError(t, err)

	img, err = host.Upload(context.Background(), Upload{Filename: "logo.svg", ContentType: "image/svg+xml", Data: []byte("<svg/>")})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/images/"+img.ID, img.URL)
}

func TestServedContentType(t *testing.T) {
	ct, ok := ServedContentType("a.PNG")
	assert.True(t, ok)
	assert.Equal(t, "image/png", ct)

	ct, ok = ServedContentType("a.heic")
	assert.True(t, ok)
	assert.Equal(t, "image/heic", ct)

	for _, name := range []string{"a.html", "a.svg", "noext"} {
		ct, ok = ServedContentType(name)
		assert.False(t, ok, name)
		assert.Equal(t, "application/octet-stream", ct, name)
	}
}

func newOSS(t *testing.T, handler http.HandlerFunc) *OSS {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewOSS(srv.URL, "quipe", "key-id", "key-secret", "https://cdn.example.com")
	require.NoError(t, err)
	return s
}

func TestOSSUpload(t *testing.T) {
	var gotPath, gotType, gotDisposition, gotBody string
	s := newOSS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OSS key-id:"))
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotDisposition = r.Header.Get("Content-Disposition")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
	})

	img, err := s.Upload(context.Background(), Upload{Filename: "me.html", ContentType: "image/png", Data: []byte("png-bytes")})
	require.NoError(t, err)

	key := "images/" + img.ID + ".png"
	assert.Equal(t, "/quipe/"+key, gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Empty(t, gotDisposition)
	assert.Equal(t, "png-bytes", gotBody)
	assert.Equal(t, "https://cdn.example.com/"+key, img.URL)
}

func TestOSSUploadNonRasterAsAttachment(t *testing.T) {
	var gotPath, gotType, gotDisposition string
	s := newOSS(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotDisposition = r.Header.Get("Content-Disposition")
		w.WriteHeader(http.StatusOK)
	})

	img, err := s.Upload(context.Background(), Upload{Filename: "logo.svg", ContentType: "image/svg+xml", Data: []byte("<svg/>")})
	require.NoError(t, err)
	assert.Equal(t, "/quipe/images/"+img.ID, gotPath)
	assert.Equal(t, "application/octet-stream", gotType)
	assert.Equal(t, "attachment", gotDisposition)
}

func TestOSSUploadFailure(t *testing.T) {
	s := newOSS(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	})

	_, err := s.Upload(context.Background(), Upload{Filename: "a.png", ContentType: "image/png", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestNewOSSRequiresConfig(t *testing.T) {
	_, err := NewOSS("", "quipe", "id", "secret", "")
	assert.Error(t, err)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "s3"})
	assert.Error(t, err)

	_, err = New(Config{Provider: "cloudflare"})
	assert.Error(t, err)
}
