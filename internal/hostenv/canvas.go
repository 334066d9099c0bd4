package hostenv

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
)

var errCanvasSize = errors.New("canvas dimensions must be positive")

// CanvasFactory renders into in-memory RGBA bitmaps. Text uses a fixed
// bitmap face, so the output depends on the image stack alone.
type CanvasFactory struct{}

func (CanvasFactory) NewCanvas(width, height int) (fingerprint.Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, errCanvasSize
	}
	return &canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

type canvas struct {
	img *image.RGBA
}

func (c *canvas) Context2D() (fingerprint.Context2D, bool) {
	return &context2D{img: c.img, fill: color.NRGBA{A: 255}}, true
}

func (c *canvas) DataURL() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type context2D struct {
	img      *image.RGBA
	fill     color.NRGBA
	font     string
	baseline string
}

func (c *context2D) SetFont(f string) { c.font = f }
func (c *context2D) SetTextBaseline(baseline string) { c.baseline = baseline }

// SetFillStyle accepts #rgb, #rrggbb and rgba() colors. Anything else
// leaves the current style unchanged, as a browser does.
func (c *context2D) SetFillStyle(style string) {
	if col, err := parseColor(style); err == nil {
		c.fill = col
	}
}

func (c *context2D) FillRect(x, y, width, height float64) {
	r := image.Rect(int(x), int(y), int(x+width), int(y+height))
	draw.Draw(c.img, r, image.NewUniform(c.fill), image.Point{}, draw.Over)
}

func (c *context2D) FillText(text string, x, y float64) {
	face := basicfont.Face7x13
	baseline := y
	if c.baseline == "top" {
		baseline += float64(face.Ascent)
	}
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(c.fill),
		Face: face,
		Dot:  fixed.P(int(x), int(baseline)),
	}
	d.DrawString(text)
}

func parseColor(style string) (color.NRGBA, error) {
	style = strings.TrimSpace(strings.ToLower(style))

	if hex, ok := strings.CutPrefix(style, "#"); ok {
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", style)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", style, err)
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}

	inner, ok := strings.CutPrefix(style, "rgba(")
	if !ok {
		inner, ok = strings.CutPrefix(style, "rgb(")
	}
	if !ok || !strings.HasSuffix(inner, ")") {
		return color.NRGBA{}, fmt.Errorf("unsupported color %q", style)
	}
	parts := strings.Split(strings.TrimSuffix(inner, ")"), ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", style)
	}

	var channels [3]uint8
	for i := range channels {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", style)
		}
		channels[i] = uint8(v)
	}
	alpha := 1.0
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", style)
		}
		alpha = a
	}
	return color.NRGBA{R: channels[0], G: channels[1], B: channels[2], A: uint8(alpha*255 + 0.5)}, nil
}
