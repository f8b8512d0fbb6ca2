package cloudinary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	c := New("demo", "key", "secret", "madrasah/resources")
	c.BaseURL = url
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestSignSortsAndSkipsKeys(t *testing.T) {
	c := testClient("")

	got := c.sign(map[string]string{"timestamp": "1700000000", "folder": "madrasah/resources", "api_key": "key"})

	// sha1("folder=madrasah/resources&timestamp=1700000000secret")
	want := New("", "", "secret", "").sign(map[string]string{"folder": "madrasah/resources", "timestamp": "1700000000"})
	assert.Equal(t, want, got)
	assert.Len(t, got, 40)
}

func TestSaveUploadsToAutoEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/auto/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "madrasah/resources", r.FormValue("folder"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.NotEmpty(t, r.FormValue("signature"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "%PDF", string(data))
		_, _ = io.WriteString(w, `{"public_id":"madrasah/resources/abc","secure_url":"https://res.example.com/abc.pdf","resource_type":"image"}`)
	}))
	defer srv.Close()

	url, id, err := testClient(srv.URL).Save(context.Background(), "notes.pdf", []byte("%PDF"))

	require.NoError(t, err)
	assert.Equal(t, "https://res.example.com/abc.pdf", url)
	assert.Equal(t, "madrasah/resources/abc", id)
}

func TestDestroyTriesEachResourceType(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "madrasah/resources/clip", r.FormValue("public_id"))
		if r.URL.Path == "/demo/video/destroy" {
			_, _ = io.WriteString(w, `{"result":"ok"}`)
			return
		}
		_, _ = io.WriteString(w, `{"result":"not found"}`)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Destroy(context.Background(), "madrasah/resources/clip")

	require.NoError(t, err)
	assert.Equal(t, []string{"/demo/image/destroy", "/demo/raw/destroy", "/demo/video/destroy"}, paths)
}

func TestUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid Signature"}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Upload(context.Background(), []byte("x"), "a.png")

	assert.ErrorContains(t, err, "401")
}
