package autodiff

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Backward computes gradients of a scalar loss with respect to every tensor
// recorded on the backend's tape.
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones(tensor.Shape{2}, backend)
//	y := x.Mul(x).Sum()
//	grads := autodiff.Backward(y, backend)
//	grad := grads[x.Raw()]
func Backward(loss *tensor.Tensor, backend *AutodiffBackend) Gradients {
	if backend.tape.NumOps() == 0 {
		exceptions.Panicf("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	seed := tensor.MustNewRaw(loss.Shape(), backend.Device())
	seed.Fill(1)
	return backend.tape.BackwardFrom(loss.Raw(), seed, backend)
}
