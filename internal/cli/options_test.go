package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codetree/internal/store"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    any
		wantErr string
	}{
		{store.KeyPinned, "true", true, ""},
		{store.KeyPinned, "no", nil, "takes a bool"},
		{store.KeyWidth, "320", 320, ""},
		{store.KeyWidth, "wide", nil, "takes a int"},
		{store.KeyHotkeys, "alt+t, ctrl+b", "alt+t, ctrl+b", ""},
		{store.KeyHotkeys, "123", "123", ""},
		{store.KeyDirection, "right", "right", ""},
		{store.KeyDirection, "up", nil, "left or right"},
		{store.KeyGitHubToken, "ghp_x", "ghp_x", ""},
		{store.KeyTheme, "dracula", "dracula", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseValue(tt.key, tt.value)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsCommand_SetGetList(t *testing.T) {
	cfg := tempConfig(t)

	_, err := execute(t, "options", "set", "--config", cfg, store.KeyIcons, "false")
	require.NoError(t, err)
	_, err = execute(t, "options", "set", "--config", cfg, store.KeyWidth, "320")
	require.NoError(t, err)
	_, err = execute(t, "options", "set", "--config", cfg, store.KeyGitHubToken, "ghp_secret")
	require.NoError(t, err)

	out, err := execute(t, "options", "get", "--config", cfg, store.KeyIcons)
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	out, err = execute(t, "options", "get", "--config", cfg, store.KeyWidth)
	require.NoError(t, err)
	assert.Equal(t, "320\n", out)

	out, err = execute(t, "options", "get", "--config", cfg, store.KeyDirection)
	require.NoError(t, err)
	assert.Equal(t, "left\n", out, "unset options report their default")

	out, err = execute(t, "options", "list", "--config", cfg)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(optionKeys()))
	assert.Contains(t, out, "githubToken  ********")
	assert.NotContains(t, out, "ghp_secret")
	assert.Contains(t, out, "width        320")
}

func TestOptionsCommand_Rejects(t *testing.T) {
	cfg := tempConfig(t)

	_, err := execute(t, "options", "set", "--config", cfg, "colour", "red")
	assert.ErrorContains(t, err, "unknown option")

	_, err = execute(t, "options", "get", "--config", cfg, "colour")
	assert.ErrorContains(t, err, "unknown option")

	_, err = execute(t, "options", "set", "--config", cfg, store.KeyWidth, "wide")
	assert.ErrorContains(t, err, "takes a int")

	_, err = execute(t, "options", "set", "--config", cfg, store.KeyWidth)
	assert.Error(t, err)
}
