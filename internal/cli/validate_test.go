package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/config"
)

func TestValidate_Config(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantCode string
	}{
		{"valid", "addr: \":9090\"\nsignals: todos: {}\n", ""},
		{"syntax", "addr: ", config.ErrCodeSyntax},
		{"invalid", "capacity: 0\n", config.ErrCodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sigsync.cue")
			require.NoError(t, os.WriteFile(path, []byte(tt.src), 0o644))

			out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), path)

			var resp struct {
				Status string           `json:"status"`
				Data   ValidationResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))

			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.True(t, resp.Data.Valid)
				return
			}
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.False(t, resp.Data.Valid)
			require.Len(t, resp.Data.Errors, 1)
			assert.Equal(t, tt.wantCode, resp.Data.Errors[0].Code)
		})
	}
}

func TestValidate_MissingConfig(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Contains(t, out, config.ErrCodeNotFound)
}

func TestValidate_Scenarios(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), harnessScenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 3 file(s) valid")

	dir := t.TempDir()
	writeScenario(t, dir, "ok.yaml", passingScenario)
	writeScenario(t, dir, "typo.yaml", "name: typo\nstep: []\n")

	out, err = execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "typo.yaml ["+ErrCodeScenarioInvalid+"]")
	assert.Contains(t, out, "1 of 2 file(s) invalid")
}
