package cli

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codetree/internal/config"
	"codetree/internal/site"
)

// execute runs a fresh root command and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// tempConfig writes a config whose store and log live in a temp dir.
func tempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.StorePath = filepath.Join(dir, "options.db")
	cfg.LogFile = filepath.Join(dir, "codetree.log")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func TestRootCommand_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "codetree [url | dir]")
	assert.Contains(t, out, "--site")
}

func TestRootCommand_Version(t *testing.T) {
	SetVersion("1.4.0")
	t.Cleanup(func() { version = "dev" })

	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0\n", out)

	SetVersion("")
	assert.Equal(t, "1.4.0", version)
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"options", "config", "version"} {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestRootCommand_TooManyArgs(t *testing.T) {
	_, err := execute(t, "--config", tempConfig(t), "a", "b")
	assert.Error(t, err)
}

func TestRootCommand_BadSiteFlag(t *testing.T) {
	_, err := execute(t, "--config", tempConfig(t), "--site", "sourceforge", "https://example.com/a/b")
	assert.ErrorContains(t, err, "unknown site kind")
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = execute(t, "config", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")
	_, err = execute(t, "config", "init", "--force", "--config", path)
	assert.NoError(t, err)

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "default_width: 280")
	assert.Contains(t, out, "theme: auto")

	out, err = execute(t, "config", "path", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestConfigCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o644))

	_, err := execute(t, "config", "show", "--config", path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestResolveTarget(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{"git@github.com:acme/widgets.git"}})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("src/main.go")
	require.NoError(t, err)
	_, err = wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	client := &http.Client{Timeout: time.Second}

	got, err := resolveTarget(t.Context(), client, filepath.Join(dir, "src"), "", cfg, site.None)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/tree/master/src", got)

	got, err = resolveTarget(t.Context(), client, dir, "", cfg, site.Gitea)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/src/branch/master", got)

	got, err = resolveTarget(t.Context(), client, "https://gitlab.com/a/b", "", cfg, site.None)
	require.NoError(t, err)
	assert.Equal(t, "https://gitlab.com/a/b", got)

	_, err = resolveTarget(t.Context(), client, t.TempDir(), "", cfg, site.None)
	assert.ErrorContains(t, err, "not a git repository")
}

func TestOptionKeys(t *testing.T) {
	keys := optionKeys()
	for _, k := range []string{"pinned", "width", "githubToken", "gitlabToken", "theme", "lastVersion"} {
		assert.Contains(t, keys, k)
	}
	assert.True(t, strings.Compare(keys[0], keys[len(keys)-1]) < 0)
}
