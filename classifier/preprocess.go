package classifier

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/Tutortoise/rice-leaf-service/models"
	"golang.org/x/image/draw"
)

// Preprocessor resizes a view to the model input with bilinear interpolation and
// lays out its RGB channels as float32. Pixel values are multiplied by scale; the
// default of 1 keeps the 0..255 range for models that normalize internally.
type Preprocessor struct {
	width, height int
	layout        Layout
	scale         float32
	numWorkers    int
}

func NewPreprocessor(width, height int, layout Layout, scale float32) *Preprocessor {
	if width <= 0 {
		width = InputWidth
	}
	if height <= 0 {
		height = InputHeight
	}
	if layout == "" {
		layout = LayoutNHWC
	}
	if scale == 0 {
		scale = 1
	}
	return &Preprocessor{
		width:      width,
		height:     height,
		layout:     layout,
		scale:      scale,
		numWorkers: min(runtime.GOMAXPROCS(0), height),
	}
}

func (p *Preprocessor) Tensor(view image.Image) (Tensor, error) {
	if view == nil || view.Bounds().Empty() {
		return Tensor{}, models.Invariant("view has no pixels", models.ErrEmptyImage)
	}
	if p.layout != LayoutNHWC && p.layout != LayoutNCHW {
		return Tensor{}, models.Configuration(fmt.Sprintf("unsupported tensor layout %q", p.layout), nil)
	}

	resized := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	draw.BiLinear.Scale(resized, resized.Bounds(), view, view.Bounds(), draw.Src, nil)

	data := make([]float32, p.width*p.height*3)
	p.processParallel(resized, data)

	return Tensor{Data: data, Height: p.height, Width: p.width, Layout: p.layout}, nil
}

func (p *Preprocessor) processParallel(img *image.RGBA, buffer []float32) {
	channelSize := p.width * p.height
	rowsPerWorker := p.height / p.numWorkers

	var wg sync.WaitGroup
	wg.Add(p.numWorkers)

	for w := 0; w < p.numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == p.numWorkers-1 {
			endRow = p.height
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				row := img.Pix[y*img.Stride:]
				for x := 0; x < p.width; x++ {
					r := float32(row[x*4]) * p.scale
					g := float32(row[x*4+1]) * p.scale
					b := float32(row[x*4+2]) * p.scale

					i := y*p.width + x
					if p.layout == LayoutNCHW {
						buffer[i] = r
						buffer[channelSize+i] = g
						buffer[channelSize*2+i] = b
						continue
					}
					buffer[i*3] = r
					buffer[i*3+1] = g
					buffer[i*3+2] = b
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}
