package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignSortsAndExcludes(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{
		"timestamp": "1700000000",
		"folder":    "students",
		"api_key":   "key",
		"file":      "data:...",
	})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=students&timestamp=1700000000secret")))
	assert.Equal(t, want, got)
}

func TestUploadDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "students", r.FormValue("folder"))
		assert.Equal(t, "student-7", r.FormValue("public_id"))
		assert.Equal(t, "data:image/jpeg;base64,AAAA", r.FormValue("file"))
		assert.NotEmpty(t, r.FormValue("signature"))
		_, _ = w.Write([]byte(`{"public_id":"students/student-7","secure_url":"https://res.example/student-7.jpg"}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "students")
	c.Endpoint = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.UploadDataURL(context.Background(), "AAAA", "student-7")
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/student-7.jpg", res.SecureURL)

	_, err = c.UploadDataURL(context.Background(), "  ", "")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestUploadFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.Endpoint = srv.URL
	_, err := c.UploadBytes(context.Background(), []byte{0xff, 0xd8}, "a.jpg", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
