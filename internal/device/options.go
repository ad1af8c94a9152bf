package device

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

// NonUniformWorkGroupOption is defined when the device accepts global sizes
// that are not multiples of the local size. Without it kernels receive the
// logical global size as their first three arguments.
const NonUniformWorkGroupOption = "-DNON_UNIFORM_WORK_GROUP"

// ActivationType is the fused activation applied by convolution kernels.
type ActivationType int

const (
	NoActivation ActivationType = iota
	ReLU
	ReLUX
	PReLU
	Tanh
	Sigmoid
	LeakyReLU
	ELU
)

func (a ActivationType) String() string {
	switch a {
	case NoActivation:
		return "NOOP"
	case ReLU:
		return "RELU"
	case ReLUX:
		return "RELUX"
	case PReLU:
		return "PRELU"
	case Tanh:
		return "TANH"
	case Sigmoid:
		return "SIGMOID"
	case LeakyReLU:
		return "LEAKYRELU"
	case ELU:
		return "ELU"
	}
	return fmt.Sprintf("ActivationType(%d)", int(a))
}

// ParseActivation maps an activation name to its type. The empty string is
// NoActivation.
func ParseActivation(s string) (ActivationType, error) {
	switch strings.ToUpper(s) {
	case "", "NOOP":
		return NoActivation, nil
	case "RELU":
		return ReLU, nil
	case "RELUX":
		return ReLUX, nil
	case "PRELU":
		return PReLU, nil
	case "TANH":
		return Tanh, nil
	case "SIGMOID":
		return Sigmoid, nil
	case "LEAKYRELU":
		return LeakyReLU, nil
	case "ELU":
		return ELU, nil
	}
	return NoActivation, status.Configurationf("unknown activation %q", s)
}

// ActivationOptions returns the build options selecting a.
func ActivationOptions(a ActivationType) ([]string, error) {
	switch a {
	case NoActivation:
		return nil, nil
	case ReLU:
		return []string{"-DUSE_RELU"}, nil
	case ReLUX:
		return []string{"-DUSE_RELUX"}, nil
	case Tanh:
		return []string{"-DUSE_TANH"}, nil
	case Sigmoid:
		return []string{"-DUSE_SIGMOID"}, nil
	case LeakyReLU:
		return []string{"-DUSE_LEAKYRELU"}, nil
	case ELU:
		return []string{"-DUSE_ELU"}, nil
	}
	return nil, status.NotImplementedf("activation %s in fused kernels", a)
}

// DataTypeOptions returns the DATA_TYPE and CMD_DATA_TYPE defines for dt.
func DataTypeOptions(dt tensor.DataType) ([]string, error) {
	switch dt {
	case tensor.Float32:
		return []string{"-DDATA_TYPE=float", "-DCMD_DATA_TYPE=f"}, nil
	case tensor.Float16:
		return []string{"-DDATA_TYPE=half", "-DCMD_DATA_TYPE=h"}, nil
	}
	return nil, status.NotImplementedf("device data type %s", dt)
}

// ObfuscateSymbol returns the entry-point name a program is built under.
// When obfuscate is false the symbol is returned unchanged.
func ObfuscateSymbol(symbol string, obfuscate bool) string {
	if !obfuscate {
		return symbol
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return fmt.Sprintf("k%08x", h.Sum32())
}

// EntryOption defines program as the name of its entry point.
func EntryOption(program, kernelName string) string {
	return "-D" + program + "=" + kernelName
}

// ParseDefines turns -DNAME and -DNAME=VALUE options into a map. Other
// options are ignored.
func ParseDefines(options []string) map[string]string {
	defines := make(map[string]string, len(options))
	for _, opt := range options {
		def, ok := strings.CutPrefix(opt, "-D")
		if !ok || def == "" {
			continue
		}
		name, value, _ := strings.Cut(def, "=")
		defines[name] = value
	}
	return defines
}
