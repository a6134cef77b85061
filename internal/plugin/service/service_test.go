package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRenderTargetReusesPooledBuffer(t *testing.T) {
	s := newTestService(nil)
	a := s.CreateRenderTarget(16)
	s.DestroyRenderTarget(a)
	b := s.CreateRenderTarget(16)
	assert.Same(t, a, b)
}

func TestGetFileSearchesDataPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pattern.dat"), []byte("hi"), 0o644))

	s := New(Config{DataPaths: []string{dir}})
	data, err := s.GetFile("pattern.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)

	released, err := s.GetFile("")
	require.NoError(t, err)
	assert.Nil(t, released)
}

func TestGetFileMissing(t *testing.T) {
	s := New(Config{DataPaths: []string{t.TempDir()}})
	_, err := s.GetFile("nope.dat")
	assert.Error(t, err)
}
