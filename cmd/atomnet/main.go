// Package main trains a segmentation model on synthetic atom images, runs
// inference with coordinate extraction and, optionally, fits a DKL-GP on
// patch statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/born-ml/atomnet/dklgp"
	"github.com/born-ml/atomnet/models"
	"github.com/born-ml/atomnet/segmentor"
	"github.com/born-ml/atomnet/tensor"
)

var (
	flagModel     = flag.String("model", "unet", "Backbone: unet or dilnet.")
	flagNum       = flag.Int("num_images", 32, "Number of synthetic images.")
	flagSize      = flag.Int("size", 64, "Side of the synthetic images.")
	flagCycles    = flag.Int("cycles", 200, "Training cycles.")
	flagBatch     = flag.Int("batch_size", 8, "Batch size.")
	flagLR        = flag.Float64("lr", 1e-3, "Learning rate.")
	flagLoss      = flag.String("loss", "ce", "Loss: ce, focal, dice or mse.")
	flagAugment   = flag.String("augment", "", "Augmentation, e.g. \"zoom,gauss_noise=20;60,rotation\".")
	flagSWA       = flag.Bool("swa", false, "Average the weights of the last quarter of training.")
	flagOutput    = flag.String("output", ".", "Directory for the checkpoint files.")
	flagSeed      = flag.Int64("seed", 1, "Random seed.")
	flagDKL       = flag.Bool("dkl", false, "Also fit a DKL-GP from image patches to the atom count.")
	flagDKLCycles = flag.Int("dkl_cycles", 100, "DKL-GP training cycles.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rng := rand.New(rand.NewSource(*flagSeed))
	images, masks := syntheticLattice(*flagNum, *flagSize, rng)

	s := must.M1(segmentor.New(segmentor.Config{Model: *flagModel, Backbone: models.Config{Seed: *flagSeed}}))
	start := time.Now()
	history := must.M1(s.Fit(ctx, segmentor.Bulk{Array: images}, segmentor.Bulk{Array: masks}, nil, nil,
		segmentor.FitConfig{
			BatchSize:    *flagBatch,
			Augmentation: *flagAugment,
			Training: segmentor.TrainConfig{
				Loss:           segmentor.LossKind(*flagLoss),
				LR:             float32(*flagLR),
				TrainingCycles: *flagCycles,
				SWA:            *flagSWA,
				Filename:       filepath.Join(*flagOutput, *flagModel),
				Seed:           *flagSeed,
			},
		}))
	elapsed := time.Since(start)

	testImages, _ := syntheticLattice(4, *flagSize, rng)
	result := must.M1(s.Predict(ctx, testImages, segmentor.PredictConfig{UseLocator: true}))
	var numAtoms int
	for _, coords := range result.Coordinates {
		numAtoms += len(coords)
	}

	bestLoss, bestCycle := s.Trainer().Best()
	lines := []string{
		fmt.Sprintf("model:         %s (%d classes)", *flagModel, s.NumClasses()),
		fmt.Sprintf("training:      %d cycles in %s", len(history.Train), elapsed.Round(time.Millisecond)),
		fmt.Sprintf("best test:     %.4f (cycle %d)", bestLoss, bestCycle+1),
		fmt.Sprintf("final test:    %.4f", s.Trainer().FinalLoss()),
		fmt.Sprintf("atoms located: %d in %d images", numAtoms, testImages.Shape()[0]),
	}
	if *flagDKL {
		lines = append(lines, runDKL(ctx, images, masks)...)
	}
	fmt.Println(lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("13")).
		Padding(1, 2).
		Render(strings.Join(lines, "\n")))
}

// syntheticLattice renders n images of Gaussian atoms on a jittered square
// lattice with the thresholded atom positions as masks.
func syntheticLattice(n, size int, rng *rand.Rand) (images, masks *tensor.RawTensor) {
	const spacing, sigma = 8.0, 1.5
	images = tensor.MustNewRaw(tensor.Shape{n, 1, size, size}, tensor.CPU)
	masks = tensor.MustNewRaw(tensor.Shape{n, 1, size, size}, tensor.CPU)
	for i := 0; i < n; i++ {
		img := images.Data()[i*size*size : (i+1)*size*size]
		mask := masks.Data()[i*size*size : (i+1)*size*size]
		for cy := spacing / 2; cy < float64(size); cy += spacing {
			for cx := spacing / 2; cx < float64(size); cx += spacing {
				if rng.Float64() < 0.1 {
					continue // vacancy
				}
				y0, x0 := cy+rng.NormFloat64()*0.5, cx+rng.NormFloat64()*0.5
				for y := 0; y < size; y++ {
					for x := 0; x < size; x++ {
						d2 := (float64(y)-y0)*(float64(y)-y0) + (float64(x)-x0)*(float64(x)-x0)
						img[y*size+x] += float32(math.Exp(-d2 / (2 * sigma * sigma)))
						if d2 <= 2*sigma*sigma {
							mask[y*size+x] = 1
						}
					}
				}
			}
		}
		for j := range img {
			img[j] += 0.05 * float32(rng.NormFloat64())
		}
	}
	return images, masks
}

// runDKL regresses the mask coverage of 8×8 patches on their pixels.
func runDKL(ctx context.Context, images, masks *tensor.RawTensor) []string {
	const patch = 8
	s := images.Shape()
	n, size := s[0], s[2]
	per := (size / patch) * (size / patch)
	x := tensor.MustNewRaw(tensor.Shape{n * per, patch * patch}, tensor.CPU)
	y := tensor.MustNewRaw(tensor.Shape{n * per}, tensor.CPU)
	row := 0
	for i := 0; i < n; i++ {
		for py := 0; py+patch <= size; py += patch {
			for px := 0; px+patch <= size; px += patch {
				var coverage float32
				for dy := 0; dy < patch; dy++ {
					for dx := 0; dx < patch; dx++ {
						src := (i*size+py+dy)*size + px + dx
						x.Data()[row*patch*patch+dy*patch+dx] = images.Data()[src]
						coverage += masks.Data()[src]
					}
				}
				y.Data()[row] = coverage / (patch * patch)
				row++
			}
		}
	}
	cfg := dklgp.DefaultConfig()
	cfg.HiddenDims = []int{64, 32}
	r := must.M1(dklgp.New(patch*patch, 2, cfg))
	must.M(r.Fit(ctx, x, y, dklgp.FitConfig{TrainingCycles: *flagDKLCycles, PrintLoss: 25}))
	mean, variance, err := r.Predict(ctx, x, 128)
	if err != nil {
		klog.Fatalf("DKL-GP prediction failed: %+v", err)
	}
	var sse, avgVar float64
	for i, v := range mean.Data() {
		d := float64(v - y.Data()[i])
		sse += d * d
		avgVar += float64(variance.Data()[i])
	}
	m := float64(mean.Shape()[0])
	losses := r.Losses()
	return []string{
		fmt.Sprintf("dkl-gp:        %d patches, final loss %.4f", row, losses[len(losses)-1]),
		fmt.Sprintf("dkl-gp fit:    rmse %.4f, mean variance %.4f", math.Sqrt(sse/m), avgVar/m),
	}
}
