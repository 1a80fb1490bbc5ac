package harness

import (
	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/vm"
)

// Arguments are converted by parameter descriptor with vm.Marshal. Results
// come back through vm.Unmarshal as int32, int64, float64, bool, uint16,
// string (nil for a null String), nil for Unit and *vm.Object for other
// references.

func marshalArgs(m *vm.Method, args []any) ([]vm.Value, error) {
	out := make([]vm.Value, len(args))
	for i, a := range args {
		v, err := vm.Marshal(m.Params[i], a)
		if err != nil {
			return nil, &ArgumentError{Index: i, Desc: m.Params[i], Value: a, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

func unmarshal(desc string, v vm.Value) any {
	if desc == classfile.DescVoid {
		return nil
	}
	return vm.Unmarshal(v)
}

// normalize converts an expected value to the form results take for desc.
func normalize(desc string, want any) (any, bool) {
	if desc == classfile.DescVoid {
		return nil, want == nil
	}
	v, err := vm.Marshal(desc, want)
	if err != nil {
		return nil, false
	}
	return vm.Unmarshal(v), true
}
