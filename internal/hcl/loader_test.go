package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles lays out a package directory from relative path -> content.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

func TestLoad_FullManifest(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"package.hcl": `
			package "foo" {
				version = "0.1.0"

				target "lib" "foo" {
					path = "src/lib.rs"
				}
				target "bin" "foo-cli" {}

				dependency "bar" {
					path     = "../bar"
					features = ["std"]
				}
				dependency "serde" {
					version          = "1.0.200"
					default_features = false
					optional         = true
					rename           = "serde_crate"
					when             = target_os != "windows"
				}

				feature "default" {
					enables = ["std"]
				}
				feature "std" {}
				feature "ser" {
					enables = ["serde", "bar/std"]
				}
			}
		`,
	})

	pkg, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "foo", pkg.ID.Name)
	assert.Equal(t, "0.1.0", pkg.ID.Version)
	assert.Empty(t, pkg.ID.Source, "the loader never assigns a source")
	assert.Equal(t, filepath.Join(dir, ManifestFileName), pkg.ManifestPath)
	assert.Equal(t, dir, pkg.Root)

	require.Len(t, pkg.Targets, 2)
	assert.Equal(t, manifest.Target{Kind: manifest.TargetLib, Name: "foo", SrcPath: "src/lib.rs"}, pkg.Targets[0])
	assert.Equal(t, "src/bin/foo-cli.rs", pkg.Targets[1].SrcPath)

	require.Len(t, pkg.Dependencies, 2)
	bar := pkg.Dependencies[0]
	assert.Equal(t, "../bar", bar.Path)
	assert.True(t, bar.DefaultFeatures)
	assert.Nil(t, bar.When)
	assert.Equal(t, []string{"std"}, bar.Features)

	serde := pkg.Dependencies[1]
	assert.Equal(t, "1.0.200", serde.Version)
	assert.False(t, serde.DefaultFeatures)
	assert.True(t, serde.Optional)
	assert.Equal(t, "serde_crate", serde.Extern())
	assert.NotNil(t, serde.When)

	assert.Equal(t, []string{"std"}, pkg.Features["default"])
	assert.Contains(t, pkg.Features, "std")
}

func TestLoad_InfersTargetsFromLayout(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"package.hcl": `package "my-tool" { version = "1.2.3" }`,
		"src/lib.rs":  "",
		"src/main.rs": "",
	})

	pkg, err := NewLoader().Load(context.Background(), filepath.Join(dir, ManifestFileName))
	require.NoError(t, err)

	require.Len(t, pkg.Targets, 2)
	assert.Equal(t, manifest.Target{Kind: manifest.TargetLib, Name: "my_tool", SrcPath: "src/lib.rs"}, pkg.Targets[0])
	assert.Equal(t, manifest.Target{Kind: manifest.TargetBin, Name: "my-tool", SrcPath: "src/main.rs"}, pkg.Targets[1])
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		content     string
		errContains string
	}{
		{
			name:        "syntax error",
			content:     `package "foo" {`,
			errContains: "failed to parse",
		},
		{
			name: "missing version",
			content: `package "foo" {
				target "lib" "foo" {}
			}`,
			errContains: "failed to decode",
		},
		{
			name:        "no package block",
			content:     ``,
			errContains: "declares no package block",
		},
		{
			name: "two package blocks",
			content: `
				package "a" { version = "1" }
				package "b" { version = "1" }
			`,
			errContains: "expected exactly one",
		},
		{
			name: "unknown target kind",
			content: `package "foo" {
				version = "1"
				target "cdylib" "foo" {}
			}`,
			errContains: "unknown target kind",
		},
		{
			name:        "no targets",
			content:     `package "foo" { version = "1" }`,
			errContains: "declares no targets",
		},
		{
			name: "dependency without source",
			content: `package "foo" {
				version = "1"
				target "lib" "foo" {}
				dependency "bar" {}
			}`,
			errContains: "must set either path or version",
		},
		{
			name: "dependency with both sources",
			content: `package "foo" {
				version = "1"
				target "lib" "foo" {}
				dependency "bar" {
					path    = "../bar"
					version = "1.0.0"
				}
			}`,
			errContains: "sets both path and version",
		},
		{
			name: "proc macro bin",
			content: `package "foo" {
				version = "1"
				target "bin" "foo" { proc_macro = true }
			}`,
			errContains: "only lib targets can be proc macros",
		},
		{
			name: "feature enabling unknown name",
			content: `package "foo" {
				version = "1"
				target "lib" "foo" {}
				feature "default" { enables = ["nope"] }
			}`,
			errContains: "unknown feature or dependency",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"package.hcl": tc.content})
			_, err := NewLoader().Load(context.Background(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errContains)
		})
	}
}

func TestLoad_MissingManifest(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no package.hcl")
}
