package target

import (
	"maps"
	"slices"

	"github.com/specialistvlad/buildbatch/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// Config is the user configuration of one platform.
type Config struct {
	Linker string   `mapstructure:"linker"`
	Runner string   `mapstructure:"runner"`
	Flags  []string `mapstructure:"flags"`
}

// Info is what is known about a platform after probing it.
type Info struct {
	Triple string
	Arch   string
	Vendor string
	OS     string
	Env    string
	Family string
	// Cfg is the list of cfg values the compiler sets for the platform,
	// e.g. `target_os="linux"`.
	Cfg []string
}

// Variables exposes the platform as cty values for evaluating dependency
// conditions.
func (i Info) Variables() map[string]cty.Value {
	return map[string]cty.Value{
		"target_triple": cty.StringVal(i.Triple),
		"target_arch":   cty.StringVal(i.Arch),
		"target_vendor": cty.StringVal(i.Vendor),
		"target_os":     cty.StringVal(i.OS),
		"target_env":    cty.StringVal(i.Env),
		"target_family": cty.StringVal(i.Family),
	}
}

// Data is the target metadata of a build context, keyed by compile kind.
type Data struct {
	Config map[unit.CompileKind]Config
	Info   map[unit.CompileKind]Info
}

// NewData returns empty target metadata.
func NewData() *Data {
	return &Data{
		Config: make(map[unit.CompileKind]Config),
		Info:   make(map[unit.CompileKind]Info),
	}
}

// Clone returns a copy that shares no maps with d.
func (d *Data) Clone() *Data {
	if d == nil {
		return NewData()
	}
	return &Data{Config: maps.Clone(d.Config), Info: maps.Clone(d.Info)}
}

// Extend copies both maps of other into d; other's entries win.
func (d *Data) Extend(other *Data) {
	if other == nil {
		return
	}
	maps.Copy(d.Config, other.Config)
	maps.Copy(d.Info, other.Info)
}

// Kinds returns the compile kinds that have probed info, host first.
func (d *Data) Kinds() []unit.CompileKind {
	kinds := slices.Collect(maps.Keys(d.Info))
	slices.SortFunc(kinds, func(a, b unit.CompileKind) int {
		switch {
		case a.Triple == b.Triple:
			return 0
		case a.IsHost():
			return -1
		case b.IsHost():
			return 1
		case a.Triple < b.Triple:
			return -1
		}
		return 1
	})
	return kinds
}
