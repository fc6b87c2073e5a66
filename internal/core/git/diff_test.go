package git

import (
	"context"
	"testing"

	"github.com/colonyops/hive-review/pkg/executil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/plan.md b/plan.md
index abc123..def456 100644
--- a/plan.md
+++ b/plan.md
@@ -1,3 +1,4 @@
 # Plan

 - step one
+- step two`

func TestExecutor_GetDiff(t *testing.T) {
	tests := []struct {
		name     string
		opts     DiffOptions
		wantArgs []string
		wantErr  bool
	}{
		{
			name:     "uncommitted changes",
			opts:     DiffOptions{Mode: DiffUncommitted},
			wantArgs: []string{"diff", "HEAD"},
		},
		{
			name:     "staged changes",
			opts:     DiffOptions{Mode: DiffStaged},
			wantArgs: []string{"diff", "--staged"},
		},
		{
			name:     "branch comparison",
			opts:     DiffOptions{Mode: DiffBranch, BaseBranch: "main"},
			wantArgs: []string{"diff", "main...HEAD"},
		},
		{
			name:    "branch comparison without base branch",
			opts:    DiffOptions{Mode: DiffBranch},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			opts:    DiffOptions{Mode: DiffMode(42)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &executil.RecordingExecutor{
				Outputs: map[string][]byte{"git diff": []byte(sampleDiff)},
			}

			e := NewExecutor("git", rec)
			got, err := e.GetDiff(context.Background(), "/test/dir", tt.opts)

			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, rec.Commands)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sampleDiff, got)
			require.Len(t, rec.Commands, 1)
			assert.Equal(t, "/test/dir", rec.Commands[0].Dir)
			assert.Equal(t, tt.wantArgs, rec.Commands[0].Args)
		})
	}
}

func TestParseDiffMode(t *testing.T) {
	for _, mode := range []DiffMode{DiffUncommitted, DiffStaged, DiffBranch} {
		got, err := ParseDiffMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	_, err := ParseDiffMode("everything")
	assert.Error(t, err)
}

func TestDescribeDiffMode(t *testing.T) {
	tests := []struct {
		name string
		opts DiffOptions
		want string
	}{
		{name: "uncommitted", opts: DiffOptions{Mode: DiffUncommitted}, want: "uncommitted changes"},
		{name: "staged", opts: DiffOptions{Mode: DiffStaged}, want: "staged changes"},
		{name: "branch", opts: DiffOptions{Mode: DiffBranch, BaseBranch: "main"}, want: "changes vs main"},
		{name: "unknown mode", opts: DiffOptions{Mode: DiffMode(999)}, want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeDiffMode(tt.opts))
		})
	}
}
