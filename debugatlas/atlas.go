// Package debugatlas stands in for the out-of-scope texture atlas
// loader (spec.md §6, §9 Non-goals): instead of sampling a real
// texture for a material's tex_top/tex_side/tex_bottom index, it
// rasterizes that index as a numeral onto a small placeholder tile, a
// flat color keyed by the index so adjacent materials are visually
// distinguishable in the preview tool and in tests.
//
// The teacher's own text handling (forge/textsdf/font.go) converts
// glyph curves into SDF shapes via gsdf.Builder/glbuild.Shader2D,
// which has no analogue once that CSG builder is out of scope here;
// this package instead drives golang/freetype's documented
// freetype.Context raster API directly onto an image.RGBA, the
// standard way the library is used outside of an SDF pipeline.
package debugatlas

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Atlas rasterizes material-index placeholder tiles with a loaded
// font.
type Atlas struct {
	font *truetype.Font
	dpi  float64
}

// New parses ttf (raw TrueType/OpenType bytes, supplied by the
// caller, the same collaborator split the teacher uses in
// Font.LoadTTFBytes) and returns an Atlas ready to rasterize tiles.
func New(ttf []byte) (*Atlas, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("debugatlas: parsing font: %w", err)
	}
	return &Atlas{font: f, dpi: 72}, nil
}

// Tile returns a size x size RGBA image: a flat background color
// derived from value, with value's decimal numeral rasterized in
// contrasting color across the middle. Index 0's tile is rendered
// distinctly (mid-gray), matching the materials table's reserved
// empty/invalid slot (materials.New).
func (a *Atlas) Tile(value uint32, size int) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	bg, fg := tileColors(value)
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	label := strconv.FormatUint(uint64(value), 10)
	fontSize := float64(size) * 0.5

	ctx := freetype.NewContext()
	ctx.SetDPI(a.dpi)
	ctx.SetFont(a.font)
	ctx.SetFontSize(fontSize)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)
	ctx.SetSrc(image.NewUniform(fg))
	ctx.SetHinting(font.HintingNone)

	pt := fixed.Point26_6{
		X: fixed.I(size / 8),
		Y: fixed.I(size) - fixed.I(size/4),
	}
	if _, err := ctx.DrawString(label, pt); err != nil {
		return nil, fmt.Errorf("debugatlas: rasterizing tile %d: %w", value, err)
	}
	return img, nil
}

// tileColors derives a deterministic background/foreground pair from
// a material index, so distinct indices are visually distinguishable
// in a preview grid without needing a real texture asset.
func tileColors(value uint32) (bg, fg color.RGBA) {
	if value == 0 {
		return color.RGBA{R: 96, G: 96, B: 96, A: 255}, color.RGBA{R: 220, G: 220, B: 220, A: 255}
	}
	h := value * 2654435761 // Knuth multiplicative hash.
	bg = color.RGBA{
		R: uint8(h >> 24),
		G: uint8(h >> 16),
		B: uint8(h >> 8),
		A: 255,
	}
	fg = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if luminance(bg) > 150 {
		fg = color.RGBA{A: 255}
	}
	return bg, fg
}

func luminance(c color.RGBA) int {
	return (int(c.R)*299 + int(c.G)*587 + int(c.B)*114) / 1000
}
