package app

import (
	"testing"

	"github.com/specialistvlad/buildbatch/internal/unitgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name        string
		in          Config
		errContains string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "defaults",
			in:   Config{DryRun: true},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "target", c.TargetDir)
				assert.Equal(t, "text", c.LogFormat)
				assert.Equal(t, "info", c.LogLevel)
				assert.Equal(t, unitgraph.FormatJSON, c.UnitGraphFormat)
			},
		},
		{
			name: "yaml report",
			in:   Config{UnitGraph: true, UnitGraphFormat: "yaml"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, unitgraph.FormatYAML, c.UnitGraphFormat)
			},
		},
		{
			name:        "unknown report format",
			in:          Config{UnitGraph: true, UnitGraphFormat: "xml"},
			errContains: "xml",
		},
		{
			name:        "bad log format",
			in:          Config{DryRun: true, LogFormat: "logfmt"},
			errContains: "invalid log format",
		},
		{
			name:        "bad log level",
			in:          Config{DryRun: true, LogLevel: "trace"},
			errContains: "invalid log level",
		},
		{
			name:        "negative jobs",
			in:          Config{DryRun: true, Jobs: -1},
			errContains: "jobs cannot be negative",
		},
		{
			name:        "unparsable compiler command",
			in:          Config{Compiler: "cc '"},
			errContains: "invalid compiler command",
		},
		{
			name: "compiler command with placeholders",
			in:   Config{Compiler: "rustc {src} -o {out} {externs}"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "rustc {src} -o {out} {externs}", c.Compiler)
			},
		},
		{
			name:        "building needs a compiler",
			in:          Config{},
			errContains: "no compiler command configured",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfig(tc.in)
			if tc.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}
