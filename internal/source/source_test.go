package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/buildbatch/internal/hcl"
	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func TestPathSource_LoadAndFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"package.hcl":    `package "bar" { version = "0.2.0" }`,
		"src/lib.rs":     "",
		"src/util/a.rs":  "",
		"README.md":      "",
		"src/notes.text": "",
	})
	src, err := NewPathSource(dir, hcl.NewLoader())
	require.NoError(t, err)

	pkg, err := src.Load(context.Background(), "bar", "")
	require.NoError(t, err)
	assert.Equal(t, manifest.NewSourceID(manifest.SourcePath, dir), pkg.ID.Source)

	again, err := src.Load(context.Background(), "", "0.2.0")
	require.NoError(t, err)
	assert.Same(t, pkg, again, "manifest must be loaded once")

	_, err = src.Load(context.Background(), "other", "")
	require.Error(t, err)
	_, err = src.Load(context.Background(), "bar", "9.9.9")
	require.Error(t, err)

	files, err := src.Files(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "src", "lib.rs"),
		filepath.Join(dir, "src", "util", "a.rs"),
	}, files)
}

func TestVendorSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"log-0.4.0/package.hcl":        `package "log" { version = "0.4.0" }`,
		"log-0.4.0/src/lib.rs":         "",
		"serde-1.0.0/package.hcl":      `package "serde" { version = "1.0.0" }`,
		"serde-1.0.0/src/lib.rs":       "",
		"serde-1.0.1/package.hcl":      `package "serde" { version = "1.0.1" }`,
		"serde-1.0.1/src/lib.rs":       "",
		"serde-json-1.0.0/package.hcl": `package "serde-json" { version = "1.0.0" }`,
		"serde-json-1.0.0/src/lib.rs":  "",
	})
	src, err := NewVendorSource(dir, hcl.NewLoader())
	require.NoError(t, err)
	ctx := context.Background()

	versions, err := src.Versions("serde")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, versions)

	pkg, err := src.Load(ctx, "log", "")
	require.NoError(t, err)
	assert.Equal(t, "0.4.0", pkg.ID.Version)
	assert.Equal(t, manifest.SourceVendor, pkg.ID.Source.Kind())

	_, err = src.Load(ctx, "serde", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "several versions")

	pkg, err = src.Load(ctx, "serde", "1.0.1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", pkg.ID.Version)

	cached, err := src.Load(ctx, "serde", "1.0.1")
	require.NoError(t, err)
	assert.Same(t, pkg, cached)

	_, err = src.Load(ctx, "serde", "2.0.0")
	require.Error(t, err)
	_, err = src.Load(ctx, "missing", "")
	require.Error(t, err)
}

func TestMap_AddMapUnion(t *testing.T) {
	a, err := NewPathSource(t.TempDir(), hcl.NewLoader())
	require.NoError(t, err)
	b, err := NewPathSource(t.TempDir(), hcl.NewLoader())
	require.NoError(t, err)
	v, err := NewVendorSource(t.TempDir(), hcl.NewLoader())
	require.NoError(t, err)

	left := NewMap()
	left.Add(a)
	left.Add(v)
	right := NewMap()
	right.Add(b)
	right.Add(v)

	left.AddMap(right)
	assert.Equal(t, 3, left.Len())
	for _, s := range []Source{a, b, v} {
		got, ok := left.Get(s.ID())
		require.True(t, ok)
		assert.Same(t, s, got)
	}
	assert.Equal(t, 2, right.Len(), "the absorbed map is left untouched")

	clone := left.Clone()
	clone.AddMap(nil)
	assert.Equal(t, left.IDs(), clone.IDs())
}
