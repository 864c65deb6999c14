// internal/revision/revision_test.go
package revision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectOutsideRepository(t *testing.T) {
	rev, err := Detect(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, rev)
}

func TestDetectEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	rev, err := Detect(dir)
	require.NoError(t, err)
	assert.Nil(t, rev)
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	suite := filepath.Join(dir, "suites", "login.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(suite), 0o755))
	require.NoError(t, os.WriteFile(suite, []byte("feature: Login\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("suites/login.yaml")
	require.NoError(t, err)
	hash, err := wt.Commit("add login suite", &git.CommitOptions{
		Author: &object.Signature{Name: "QA", Email: "qa@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	// Detection walks up from nested directories.
	rev, err := Detect(filepath.Join(dir, "suites"))
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, hash.String(), rev.Commit)
	assert.Equal(t, "master", rev.Branch)
	assert.False(t, rev.Dirty)

	require.NoError(t, os.WriteFile(suite, []byte("feature: Login v2\n"), 0o644))
	rev, err = Detect(dir)
	require.NoError(t, err)
	assert.True(t, rev.Dirty)
}
