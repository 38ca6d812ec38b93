package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserHomeFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	assert.Equal(t, dir, UserHome())
}

func TestCheckFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	assert.False(t, CheckFileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.True(t, CheckFileExists(path))
}

type orderCloser struct {
	id    int
	order *[]int
	err   error
}

func (c orderCloser) Close() error {
	*c.order = append(*c.order, c.id)
	return c.err
}

func TestCloseAllReverseOrder(t *testing.T) {
	var order []int
	RegisterCloser(orderCloser{id: 1, order: &order})
	RegisterCloser(nil)
	RegisterCloser(orderCloser{id: 2, order: &order, err: errors.New("boom")})
	RegisterCloser(orderCloser{id: 3, order: &order})

	CloseAll()
	assert.Equal(t, []int{3, 2, 1}, order, "a failing closer does not stop the rest")

	CloseAll()
	assert.Len(t, order, 3, "list is cleared")
}
