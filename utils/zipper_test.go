package utils

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveWriter(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf)
	mod := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, aw.WriteFile("data.yaml", []byte("names: {}\n"), mod))
	n, err := aw.CopyFile("images/train/a.jpg", strings.NewReader("jpegbytes"), mod)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
	assert.Equal(t, 2, aw.Entries())
	require.NoError(t, aw.Close())
	require.NoError(t, aw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	assert.Equal(t, "data.yaml", zr.File[0].Name)
	assert.Equal(t, zip.Deflate, zr.File[0].Method)
	assert.Equal(t, "images/train/a.jpg", zr.File[1].Name)
	assert.Equal(t, zip.Store, zr.File[1].Method)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(b))
}
