package nn

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// StateDict is a flat snapshot of parameters keyed by name.
type StateDict map[string]*tensor.RawTensor

// Keys returns the names in sorted order.
func (sd StateDict) Keys() []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetStateDict returns deep copies of every parameter of m.
func GetStateDict(m Module) StateDict {
	sd := make(StateDict)
	for _, p := range m.Parameters() {
		sd[p.Name()] = p.raw.Clone()
	}
	return sd
}

// LoadStateDict copies the values of sd into the parameters of m. Every
// parameter must be present with a matching shape; extra keys are an error.
func LoadStateDict(m Module, sd StateDict) error {
	params := m.Parameters()
	if len(sd) != len(params) {
		return errors.Errorf("state dict has %d tensors, model has %d parameters", len(sd), len(params))
	}
	for _, p := range params {
		src, ok := sd[p.Name()]
		if !ok {
			return errors.Errorf("missing parameter %q in state dict", p.Name())
		}
		if !src.Shape().Equal(p.raw.Shape()) {
			return errors.Errorf("parameter %q: shape mismatch, model %v vs state dict %v",
				p.Name(), p.raw.Shape(), src.Shape())
		}
	}
	for _, p := range params {
		copy(p.raw.Data(), sd[p.Name()].Data())
	}
	return nil
}
