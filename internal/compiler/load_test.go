package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgraph/internal/ir"
)

func writeCUE(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("package assets\n"+body), 0o644))
}

func loadErrCode(t *testing.T, errs []error) string {
	t.Helper()
	require.NotEmpty(t, errs)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le), "got %v", errs[0])
	return le.Code
}

func TestLoadDirAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "raw.cue", `asset: raw: partitions: {kind: "static", keys: ["a", "b"]}`)
	writeCUE(t, dir, "derived.cue", `asset: derived: {
	partitions: {kind: "static", keys: ["a", "b"]}
	deps: raw: {}
}`)

	res, errs := LoadDir(dir, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 2, res.FileCount)

	keys := make([]ir.AssetKey, len(res.Assets))
	for i, a := range res.Assets {
		keys[i] = a.Key
	}
	assert.ElementsMatch(t, []ir.AssetKey{"raw", "derived"}, keys)

	_, err := Build(res.Assets)
	assert.NoError(t, err)
}

func TestLoadDirCollectsCompileErrors(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "bad.cue", `
asset: one: {owner: "me"}
asset: two: partitions: {kind: "static", color: "red"}
asset: three: {}
`)

	res, errs := LoadDir(dir, LoadModeCollectAll)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrCodeCompile, loadErrCode(t, errs))
	require.Len(t, res.Assets, 1)
	assert.Equal(t, ir.AssetKey("three"), res.Assets[0].Key)

	_, errs = LoadDir(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestLoadDirErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, errs := LoadDir(filepath.Join(t.TempDir(), "nope"), LoadModeFailFast)
		assert.Equal(t, ErrCodeNotFound, loadErrCode(t, errs))
	})

	t.Run("not a directory", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "a.cue", `x: 1`)
		_, errs := LoadDir(filepath.Join(dir, "a.cue"), LoadModeFailFast)
		assert.Equal(t, ErrCodeNotFound, loadErrCode(t, errs))
	})

	t.Run("no files", func(t *testing.T) {
		_, errs := LoadDir(t.TempDir(), LoadModeFailFast)
		assert.Equal(t, ErrCodeNoFiles, loadErrCode(t, errs))
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "a.cue", `asset: {{{`)
		_, errs := LoadDir(dir, LoadModeFailFast)
		assert.Equal(t, ErrCodeLoadFailed, loadErrCode(t, errs))
	})

	t.Run("conflicting values", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "a.cue", `asset: a: version: "1.0.0"`)
		writeCUE(t, dir, "b.cue", `asset: a: version: "2.0.0"`)
		_, errs := LoadDir(dir, LoadModeFailFast)
		assert.Equal(t, ErrCodeBuildFailed, loadErrCode(t, errs))
	})

	t.Run("no assets", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "a.cue", `other: 1`)
		_, errs := LoadDir(dir, LoadModeFailFast)
		assert.Equal(t, ErrCodeNoAssets, loadErrCode(t, errs))
	})
}
