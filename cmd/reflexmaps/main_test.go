package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/reflexmaps/internal/catalog/catalogtest"
	"github.com/openmined/reflexmaps/internal/state"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jan2020  = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	june2020 = time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestUsage_WrongArgumentCount(t *testing.T) {
	srv := catalogtest.New()
	defer srv.Close()
	statePath := filepath.Join(t.TempDir(), ".reflexMaps")

	for _, args := range [][]string{
		{},
		{"all", "42"},
	} {
		stdout, _, err := execute(t, append(args, "--state", statePath, "--source", srv.SourceURL())...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "reflexmaps all")
		assert.Contains(t, stdout, "reflexmaps <id>")
	}

	assert.Empty(t, srv.Requests())
	assert.NoFileExists(t, statePath)
}

func TestRun_FullThenScoped(t *testing.T) {
	srv := catalogtest.New()
	defer srv.Close()
	srv.SetNow(june2020)
	item := srv.PutMap("a.map", []byte("arena"), jan2020, "42")

	tmp := t.TempDir()
	statePath := filepath.Join(tmp, ".reflexMaps")
	mapPath := filepath.Join(tmp, "maps")
	flags := []string{"--state", statePath, "--source", srv.SourceURL(), "--map-path", mapPath, "--timeout", "10s"}

	stdout, _, err := execute(t, append([]string{"all"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "found 1 updates")
	assert.Contains(t, stdout, "downloading "+item.URL+" to "+filepath.Join(mapPath, "a.map"))
	assert.Contains(t, stdout, "storing update information")

	data, err := os.ReadFile(filepath.Join(mapPath, "a.map"))
	require.NoError(t, err)
	assert.Equal(t, "arena", string(data))

	st := state.Load(afero.NewOsFs(), statePath, state.SyncState{})
	assert.True(t, st.LastFullSync.Equal(june2020))

	stdout, _, err = execute(t, append([]string{"42"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "already latest version of "+item.URL)

	// the run lock is released after each run
	assert.NoFileExists(t, statePath+".lock")
}

func TestRun_CatalogFailureExitsWithError(t *testing.T) {
	srv := catalogtest.New()
	defer srv.Close()
	srv.FailCatalog(500)

	tmp := t.TempDir()
	statePath := filepath.Join(tmp, ".reflexMaps")
	_, _, err := execute(t, "all", "--state", statePath, "--source", srv.SourceURL(), "--map-path", tmp)
	require.Error(t, err)
	assert.NoFileExists(t, statePath)
}

func TestRun_LockedStateFails(t *testing.T) {
	srv := catalogtest.New()
	defer srv.Close()

	tmp := t.TempDir()
	statePath := filepath.Join(tmp, ".reflexMaps")
	held, err := state.Lock(statePath)
	require.NoError(t, err)
	defer held.Unlock()

	_, _, err = execute(t, "all", "--state", statePath, "--source", srv.SourceURL(), "--map-path", tmp)
	assert.ErrorIs(t, err, state.ErrLocked)
	assert.Empty(t, srv.Requests())
}

func TestRun_EnvironmentOverrides(t *testing.T) {
	srv := catalogtest.New()
	defer srv.Close()
	srv.PutMap("a.map", []byte("a"), jan2020)

	tmp := t.TempDir()
	statePath := filepath.Join(tmp, ".reflexMaps")
	t.Setenv("REFLEXMAPS_SOURCE", srv.SourceURL())
	t.Setenv("REFLEXMAPS_MAP_PATH", filepath.Join(tmp, "env-maps"))
	t.Setenv("REFLEXMAPS_DRY_RUN", "true")

	stdout, _, err := execute(t, "all", "--state", statePath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "would download")
	assert.NoFileExists(t, statePath)
	assert.NoDirExists(t, filepath.Join(tmp, "env-maps"))
}

func TestRun_LogFile(t *testing.T) {
	srv := catalogtest.New()
	defer srv.Close()

	tmp := t.TempDir()
	logFile := filepath.Join(tmp, "logs", "reflexmaps.log")
	_, _, err := execute(t, "all",
		"--state", filepath.Join(tmp, ".reflexMaps"),
		"--source", srv.SourceURL(),
		"--map-path", tmp,
		"--log-file", logFile,
	)
	require.NoError(t, err)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "line=1 ")
	assert.Contains(t, string(data), "sync start")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("Debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
