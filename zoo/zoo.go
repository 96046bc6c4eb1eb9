// Package zoo parses the zoo file (spec §6): a YAML mapping of pipeline
// name to the settings that select and configure each stage. The parsing
// shape (strict KnownFields decode into a typed struct, explicit Validate)
// follows the teacher's sim/bundle.go PolicyBundle pattern.
package zoo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Filter narrows which zoo entries are offered, by backend family (spec §3's
// "Zoo entry... a single global filter").
type Filter int

const (
	All Filter = iota
	OpenCVOnly
	TPUOnly
	NPUOnly
	VPUOnly
)

// ParseFilter maps a zoo "filter" string to a Filter.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "All":
		return All, nil
	case "OpenCV":
		return OpenCVOnly, nil
	case "TPU":
		return TPUOnly, nil
	case "NPU":
		return NPUOnly, nil
	case "VPU":
		return VPUOnly, nil
	default:
		return 0, fmt.Errorf("zoo: unknown filter %q", s)
	}
}

// Matches reports whether an entry with the given nettype passes f.
func (f Filter) Matches(nettype string) bool {
	switch f {
	case All:
		return true
	case OpenCVOnly:
		return nettype == "OpenCV"
	case TPUOnly:
		return nettype == "TPU"
	case NPUOnly:
		return nettype == "NPU"
	case VPUOnly:
		return nettype == "VPU"
	default:
		return false
	}
}

// Entry is one named pipeline configuration (spec §6's table of recognized
// zoo keys).
type Entry struct {
	Preproc  string `yaml:"preproc"`
	NetType  string `yaml:"nettype"`
	PostProc string `yaml:"postproc"`

	Model  string `yaml:"model"`
	Config string `yaml:"config"`

	InTensors  string `yaml:"intensors"`
	OutTensors string `yaml:"outtensors"`

	Mean   []float32 `yaml:"mean"`
	Scale  []float32 `yaml:"scale"`
	RGB    bool      `yaml:"rgb"`
	Resize string    `yaml:"resize"`

	Classes string `yaml:"classes"`

	Anchors     string  `yaml:"anchors"`
	DetectType  string  `yaml:"detecttype"`
	SegType     string  `yaml:"segtype"`
	NMS         float32 `yaml:"nms"`
	Thresh      float32 `yaml:"thresh"`
	Top         int     `yaml:"top"`
	ClassOffset int     `yaml:"classoffset"`
	Softmax     bool    `yaml:"softmax"`
	ScoreScale  float32 `yaml:"scorescale"`
	Alpha       int     `yaml:"alpha"`
	BgID        int     `yaml:"bgid"`

	Dequant        DequantSetting `yaml:"dequant"`
	FlattenOutputs bool           `yaml:"flattenoutputs"`
	Target         string `yaml:"target"`
	Backend        string `yaml:"backend"`
	TPUNum         int    `yaml:"tpunum"`
	Accelerator    string `yaml:"accelerator"`

	ExtraModel string `yaml:"extramodel"`
	Comment    string `yaml:"comment"`

	// name is the YAML map key this entry was parsed under; not a YAML
	// field itself.
	name string
}

// Name returns the pipeline name this entry was declared under.
func (e Entry) Name() string { return e.name }

// DequantSetting is the zoo "dequant" key, which accepts either a plain bool
// or one (or a list of) "no:<name>" entries naming outputs to leave
// quantized even though dequant is otherwise enabled (spec §4.3's
// per-output dequant override).
type DequantSetting struct {
	Enabled bool
	Exclude []string
}

func (d *DequantSetting) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := value.Decode(&b); err == nil {
			d.Enabled = b
			return nil
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return fmt.Errorf("zoo: dequant value must be a bool or \"no:<name>\": %w", err)
		}
		name, ok := strings.CutPrefix(s, "no:")
		if !ok {
			return fmt.Errorf("zoo: dequant string value %q must have the form \"no:<name>\"", s)
		}
		d.Enabled = true
		d.Exclude = append(d.Exclude, name)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		d.Enabled = true
		for _, s := range list {
			name, ok := strings.CutPrefix(s, "no:")
			if !ok {
				return fmt.Errorf("zoo: dequant list entry %q must have the form \"no:<name>\"", s)
			}
			d.Exclude = append(d.Exclude, name)
		}
		return nil
	default:
		return fmt.Errorf("zoo: dequant: unsupported YAML node kind %v", value.Kind)
	}
}

// ParseError wraps a zoo file's read or YAML decode failure, surfaced on
// parameter change per spec §7's error taxonomy. The pipeline controller
// has already torn down its previous stages when it loads the new file, so
// on this error it enters its Error state; the previous pipe does not stay
// active.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("zoo: parsing %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Zoo is a parsed zoo file: a set of named entries plus the root directory
// relative paths (model, config, classes) resolve against.
type Zoo struct {
	Root    string
	entries map[string]Entry
}

// Load reads and strictly parses the zoo YAML file at path. Unknown keys are
// a parse error (spec: typos must not silently no-op).
func Load(path string) (*Zoo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var raw map[string]Entry
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	for name, e := range raw {
		e.name = name
		raw[name] = e
	}
	return &Zoo{Root: filepath.Dir(path), entries: raw}, nil
}

// Entry looks up a named pipeline.
func (z *Zoo) Entry(name string) (Entry, bool) {
	e, ok := z.entries[name]
	return e, ok
}

// Names returns every entry name matching f, sorted.
func (z *Zoo) Names(f Filter) []string {
	var names []string
	for name, e := range z.entries {
		if f.Matches(e.NetType) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ResolvePath resolves a zoo entry's relative path field (model, config,
// classes) against z.Root; absolute paths pass through unchanged.
func (z *Zoo) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(z.Root, p)
}
