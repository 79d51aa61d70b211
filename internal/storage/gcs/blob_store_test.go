package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = New(&storage.Client{}, Config{Bucket: " "})
	assert.Error(t, err)

	store, err := New(&storage.Client{}, Config{Bucket: "b"})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	plain, err := New(&storage.Client{}, Config{Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "about/index.html", plain.ObjectName("/about/index.html"))

	prefixed, err := New(&storage.Client{}, Config{Bucket: "b", Prefix: "/sites/blog/"})
	require.NoError(t, err)
	assert.Equal(t, "sites/blog/index.html", prefixed.ObjectName("index.html"))
	assert.Equal(t, "sites/blog/assets/app.css", prefixed.ObjectName("assets/app.css"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(&storage.Client{}, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "text/html", nil)
	assert.Error(t, err)
}
