package network

import "fmt"

// Config groups the parameters a zoo entry supplies for constructing a
// Network instance (spec §6: model, config, intensors, outtensors, dequant,
// flattenoutputs, target, backend, tpunum, accelerator).
type Config struct {
	ModelPath    string
	ConfigPath   string
	InTensors    string // tensor-spec string, parsed by the backend at Load
	OutTensors   string
	Target       string // backend-specific compute target (e.g. "CPU", "CUDA")
	Backend      string // backend-specific compute backend selector
	TPUNum       int
	Accelerator  string
	Shaping      ShapingConfig
}

// NewFunc constructs a Network from a Config. Backend subpackages register
// one via Register in their init(), mirroring the teacher's
// sim/kv/register.go and sim/latency/register.go factory-registration
// idiom: this breaks the import cycle that would otherwise exist between
// this package (which defines Network) and the backend packages (which
// implement it).
type NewFunc func(cfg Config) (Network, error)

var registry = map[string]NewFunc{}

// Register associates a zoo "nettype" name with a constructor. Called from
// a backend subpackage's init().
func Register(nettype string, fn NewFunc) {
	registry[nettype] = fn
}

// New constructs a Network by zoo "nettype". "Custom" is never registered
// here: the pipeline controller installs a user-supplied implementation via
// SetCustomNetwork instead.
func New(nettype string, cfg Config) (Network, error) {
	if nettype == "Custom" {
		return nil, fmt.Errorf("network: nettype %q must be installed via SetCustomNetwork, not network.New", nettype)
	}
	fn, ok := registry[nettype]
	if !ok {
		return nil, fmt.Errorf("network: unknown nettype %q; import the backend package to register it (e.g. _ %q)",
			nettype, "github.com/harshmittal2210/jevois/network/"+backendImportHint(nettype))
	}
	return fn(cfg)
}

func backendImportHint(nettype string) string {
	switch nettype {
	case "OpenCV":
		return "opencv"
	case "NPU":
		return "npu"
	case "TPU":
		return "tpu"
	default:
		return "..."
	}
}
