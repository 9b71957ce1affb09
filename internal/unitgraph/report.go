package unitgraph

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/specialistvlad/buildbatch/internal/unit"
	"gopkg.in/yaml.v3"
)

// ReportVersion is the version of the serialized unit-graph document.
const ReportVersion = 1

// Format selects the encoding of the unit-graph report.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a report format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown unit graph format %q (expected json or yaml)", s)
}

// Report is the graph-inspection document.
type Report struct {
	Version int          `json:"version" yaml:"version"`
	Units   []ReportUnit `json:"units" yaml:"units"`
	Roots   []int        `json:"roots" yaml:"roots"`
}

// ReportUnit describes one unit. Dependencies refer to other units by their
// index in Report.Units.
type ReportUnit struct {
	PkgID        string       `json:"pkg_id" yaml:"pkg_id"`
	Target       ReportTarget `json:"target" yaml:"target"`
	Profile      unit.Profile `json:"profile" yaml:"profile"`
	Platform     *string      `json:"platform" yaml:"platform"`
	Mode         unit.Mode    `json:"mode" yaml:"mode"`
	Features     []string     `json:"features" yaml:"features"`
	Fingerprint  string       `json:"fingerprint" yaml:"fingerprint"`
	Dependencies []ReportDep  `json:"dependencies" yaml:"dependencies"`
}

type ReportTarget struct {
	Kind    string `json:"kind" yaml:"kind"`
	Name    string `json:"name" yaml:"name"`
	SrcPath string `json:"src_path" yaml:"src_path"`
}

type ReportDep struct {
	Index           int    `json:"index" yaml:"index"`
	ExternCrateName string `json:"extern_crate_name" yaml:"extern_crate_name"`
}

// BuildReport renders the graph and its roots into a Report. Units are
// listed in the deterministic order of Graph.Units.
func (g Graph) BuildReport(roots []*unit.Unit) (*Report, error) {
	if err := g.Validate(roots); err != nil {
		return nil, err
	}
	units := g.Units()
	index := make(map[*unit.Unit]int, len(units))
	for i, u := range units {
		index[u] = i
	}

	r := &Report{
		Version: ReportVersion,
		Units:   make([]ReportUnit, 0, len(units)),
		Roots:   make([]int, 0, len(roots)),
	}
	for _, u := range units {
		ru := ReportUnit{
			PkgID: u.Key().Package.String(),
			Target: ReportTarget{
				Kind:    string(u.Target().Kind),
				Name:    u.Target().Name,
				SrcPath: u.Target().SrcPath,
			},
			Profile:      u.Profile(),
			Mode:         u.Mode(),
			Features:     u.Features(),
			Fingerprint:  u.FingerprintHex(),
			Dependencies: []ReportDep{},
		}
		if !u.Kind().IsHost() {
			triple := u.Kind().Triple
			ru.Platform = &triple
		}
		for _, d := range g[u] {
			ru.Dependencies = append(ru.Dependencies, ReportDep{
				Index:           index[d.Unit],
				ExternCrateName: d.ExternName,
			})
		}
		r.Units = append(r.Units, ru)
	}
	for _, root := range roots {
		r.Roots = append(r.Roots, index[root])
	}
	return r, nil
}

// Write serializes the report for the graph and roots to w.
func (g Graph) Write(w io.Writer, roots []*unit.Unit, format Format) error {
	r, err := g.BuildReport(roots)
	if err != nil {
		return err
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode unit graph as yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode unit graph as json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown unit graph format %q", format)
}
