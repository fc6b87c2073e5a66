package git

import (
	"context"
	"errors"
	"testing"

	"github.com/colonyops/hive-review/pkg/executil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Git = (*Executor)(nil)

func TestExtractOwnerRepo(t *testing.T) {
	tests := []struct {
		remote    string
		wantOwner string
		wantRepo  string
	}{
		{"git@github.com:colonyops/hive.git", "colonyops", "hive"},
		{"https://github.com/colonyops/hive.git", "colonyops", "hive"},
		{"git@github.com:colonyops/hive", "colonyops", "hive"},
		{"https://github.com/colonyops/hive", "colonyops", "hive"},
		{"git@gitlab.com:org/subgroup/repo.git", "subgroup", "repo"},
		{"https://gitlab.com/org/subgroup/repo.git", "subgroup", "repo"},
		{"invalid", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			owner, repo := ExtractOwnerRepo(tt.remote)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestParseDiffStats(t *testing.T) {
	tests := []struct {
		in       string
		add, del int
	}{
		{" 3 files changed, 10 insertions(+), 5 deletions(-)", 10, 5},
		{" 1 file changed, 1 insertion(+)", 1, 0},
		{" 1 file changed, 2 deletions(-)", 0, 2},
		{"", 0, 0},
	}

	for _, tt := range tests {
		add, del := parseDiffStats(tt.in)
		assert.Equal(t, tt.add, add, tt.in)
		assert.Equal(t, tt.del, del, tt.in)
	}
}

func TestExecutor_Branch(t *testing.T) {
	ctx := context.Background()

	t.Run("named branch", func(t *testing.T) {
		rec := &executil.RecordingExecutor{
			Outputs: map[string][]byte{"git branch": []byte("feature/review\n")},
		}
		got, err := NewExecutor("git", rec).Branch(ctx, "/repo")
		require.NoError(t, err)
		assert.Equal(t, "feature/review", got)
		assert.Len(t, rec.Commands, 1)
	})

	t.Run("detached head falls back to sha", func(t *testing.T) {
		rec := &executil.RecordingExecutor{
			Outputs: map[string][]byte{
				"git branch":    []byte("\n"),
				"git rev-parse": []byte("abc1234\n"),
			},
		}
		got, err := NewExecutor("git", rec).Branch(ctx, "/repo")
		require.NoError(t, err)
		assert.Equal(t, "abc1234", got)
	})

	t.Run("error wraps", func(t *testing.T) {
		rec := &executil.RecordingExecutor{
			Errors: map[string]error{"git branch": errors.New("not a repo")},
		}
		_, err := NewExecutor("git", rec).Branch(ctx, "/repo")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a repo")
	})
}

func TestExecutor_RemoteURLAndDiffStats(t *testing.T) {
	rec := &executil.RecordingExecutor{
		Outputs: map[string][]byte{
			"git remote": []byte("git@github.com:colonyops/hive.git\n"),
			"git diff":   []byte(" 2 files changed, 7 insertions(+), 3 deletions(-)\n"),
		},
	}
	e := NewExecutor("/usr/bin/git", rec)

	url, err := e.RemoteURL(context.Background(), "/repo")
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:colonyops/hive.git", url)

	add, del, err := e.DiffStats(context.Background(), "/repo")
	require.NoError(t, err)
	assert.Equal(t, 7, add)
	assert.Equal(t, 3, del)

	assert.Equal(t, "/usr/bin/git", rec.Commands[0].Cmd)
	assert.Equal(t, []string{"diff", "--shortstat", "HEAD"}, rec.Commands[1].Args)
}
