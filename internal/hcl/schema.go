package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a manifest file may contain.
type fileRoot struct {
	Packages []*packageBlock `hcl:"package,block"`
	Remain   hcl.Body        `hcl:",remain"`
}

type packageBlock struct {
	Name         string             `hcl:"name,label"`
	Version      string             `hcl:"version"`
	Targets      []*targetBlock     `hcl:"target,block"`
	Dependencies []*dependencyBlock `hcl:"dependency,block"`
	Features     []*featureBlock    `hcl:"feature,block"`
}

type targetBlock struct {
	Kind      string `hcl:"kind,label"`
	Name      string `hcl:"name,label"`
	Path      string `hcl:"path,optional"`
	ProcMacro bool   `hcl:"proc_macro,optional"`
}

type dependencyBlock struct {
	Name            string         `hcl:"name,label"`
	Path            string         `hcl:"path,optional"`
	Version         string         `hcl:"version,optional"`
	Features        []string       `hcl:"features,optional"`
	DefaultFeatures *bool          `hcl:"default_features,optional"`
	Optional        bool           `hcl:"optional,optional"`
	Rename          string         `hcl:"rename,optional"`
	When            hcl.Expression `hcl:"when,optional"`
}

type featureBlock struct {
	Name    string   `hcl:"name,label"`
	Enables []string `hcl:"enables,optional"`
}
