package trainer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/tensor"
)

// Grid is one image export: generated samples for a fixed latent batch and, on every
// tenth export, the real batch the discriminator just saw.
type Grid struct {
	Index int // iteration / save_img_every
	Level int
	Phase string
	Gen   float64
	Dis   float64
	Fake  *tensor.Batch
	Real  *tensor.Batch // nil when not due
}

// Name is the file stem shared by every file of one export.
func (g Grid) Name() string {
	return fmt.Sprintf("%d_%s_G%s_D%s", g.Index, g.Phase, percent(g.Gen), percent(g.Dis))
}

// percent renders a completeness value with at least one decimal ("0.0", "12.5").
func percent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// GridSink receives image exports.
type GridSink interface {
	WriteGrid(ctx context.Context, g Grid) error
}

type noGrids struct{}

func (noGrids) WriteGrid(context.Context, Grid) error { return nil }

// PNGGrids writes exports below dir:
//
//	grid/{name}.png            tiled generated samples
//	grid_real/{name}.png       tiled real batch
//	resl_{N}/{name}.png        first generated sample
//	resl_{N}_real/{name}.png   first real sample
type PNGGrids struct {
	dir string
}

func NewPNGGrids(dir string) *PNGGrids { return &PNGGrids{dir: dir} }

func (p *PNGGrids) WriteGrid(ctx context.Context, g Grid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := g.Name() + ".png"
	resl := "resl_" + strconv.Itoa(g.Level)

	writes := []gridFile{{"grid", g.Fake, true}, {resl, g.Fake, false}}
	if g.Real != nil {
		writes = append(writes, gridFile{"grid_real", g.Real, true}, gridFile{resl + "_real", g.Real, false})
	}
	for _, w := range writes {
		if w.batch == nil || w.batch.N == 0 {
			continue
		}
		img := single(w.batch, 0)
		if w.tiled {
			img = tile(w.batch)
		}
		if err := writePNG(filepath.Join(p.dir, w.sub, name), img); err != nil {
			return err
		}
	}
	return nil
}

type gridFile struct {
	sub   string
	batch *tensor.Batch
	tiled bool
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create grid directory").
			WithContext("path", path).Build()
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create grid file").
			WithContext("path", path).Build()
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to encode grid").
			WithContext("path", path).Build()
	}
	return f.Close()
}

const gridPadding = 2

// tile lays the batch out on a near-square grid with a black border between samples.
func tile(b *tensor.Batch) image.Image {
	cols := int(math.Ceil(math.Sqrt(float64(b.N))))
	rows := (b.N + cols - 1) / cols
	w := cols*(b.W+gridPadding) + gridPadding
	h := rows*(b.H+gridPadding) + gridPadding
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 0xff
		}
	}
	for n := range b.N {
		ox := gridPadding + (n%cols)*(b.W+gridPadding)
		oy := gridPadding + (n/cols)*(b.H+gridPadding)
		paint(img, b, n, ox, oy)
	}
	return img
}

func single(b *tensor.Batch, n int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, b.W, b.H))
	paint(img, b, n, 0, 0)
	return img
}

func paint(img *image.NRGBA, b *tensor.Batch, n, ox, oy int) {
	for y := range b.H {
		for x := range b.W {
			var px [3]uint8
			for c := range 3 {
				px[c] = toByte(b.At(n, min(c, b.C-1), y, x))
			}
			img.SetNRGBA(ox+x, oy+y, color.NRGBA{R: px[0], G: px[1], B: px[2], A: 0xff})
		}
	}
}

// toByte maps [-1, 1] to [0, 255].
func toByte(v float32) uint8 {
	f := (float64(v) + 1) / 2 * 255
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(math.Round(f))
}
