// Package render turns a quote into a square PNG ready for publishing:
// template background, word-wrapped freetype text, author attribution line.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const (
	canvasSize = 1080
	margin     = 96
)

type Template struct {
	Name       string
	Background color.RGBA
	Foreground color.RGBA
	FontSize   float64
}

var templates = map[string]Template{
	"classic": {Name: "classic", Background: color.RGBA{245, 240, 230, 255}, Foreground: color.RGBA{40, 40, 45, 255}, FontSize: 56},
	"dark":    {Name: "dark", Background: color.RGBA{24, 24, 28, 255}, Foreground: color.RGBA{235, 235, 240, 255}, FontSize: 56},
	"ocean":   {Name: "ocean", Background: color.RGBA{18, 74, 110, 255}, Foreground: color.RGBA{240, 248, 255, 255}, FontSize: 56},
	"sunrise": {Name: "sunrise", Background: color.RGBA{250, 200, 120, 255}, Foreground: color.RGBA{70, 40, 20, 255}, FontSize: 56},
}

const defaultTemplate = "classic"

var (
	fontOnce   sync.Once
	parsedFont *truetype.Font
	fontErr    error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		parsedFont, fontErr = freetype.ParseFont(goregular.TTF)
	})
	return parsedFont, fontErr
}

// QuoteImage renders text and author onto a 1080x1080 canvas and returns PNG
// bytes. Unknown template names fall back to the classic template.
func QuoteImage(text, author, template string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("render: empty quote text")
	}
	tpl, ok := templates[strings.ToLower(strings.TrimSpace(template))]
	if !ok {
		tpl = templates[defaultTemplate]
	}

	f, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("render: parse font: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, canvasSize, canvasSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(tpl.Background), image.Point{}, draw.Src)

	size := tpl.FontSize
	face := truetype.NewFace(f, &truetype.Options{Size: size})
	maxWidth := canvasSize - 2*margin
	lines := wrap(face, "“"+text+"”", maxWidth)

	// Shrink until the quote fits the vertical space, down to a floor.
	lineHeight := int(size * 1.4)
	for len(lines)*lineHeight > canvasSize-2*margin-120 && size > 28 {
		size -= 4
		face = truetype.NewFace(f, &truetype.Options{Size: size})
		lines = wrap(face, "“"+text+"”", maxWidth)
		lineHeight = int(size * 1.4)
	}

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.NewUniform(tpl.Foreground))

	authorSize := size * 0.55
	blockHeight := len(lines) * lineHeight
	if author != "" {
		blockHeight += int(authorSize * 2)
	}
	y := (canvasSize-blockHeight)/2 + lineHeight

	for _, line := range lines {
		w := font.MeasureString(face, line).Ceil()
		x := (canvasSize - w) / 2
		if _, err := c.DrawString(line, freetype.Pt(x, y)); err != nil {
			return nil, fmt.Errorf("render: draw: %w", err)
		}
		y += lineHeight
	}

	if author != "" {
		c.SetFontSize(authorSize)
		authorFace := truetype.NewFace(f, &truetype.Options{Size: authorSize})
		line := "— " + author
		w := font.MeasureString(authorFace, line).Ceil()
		x := (canvasSize - w) / 2
		y += int(authorSize)
		if _, err := c.DrawString(line, freetype.Pt(x, y)); err != nil {
			return nil, fmt.Errorf("render: draw author: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// wrap splits text into lines no wider than maxWidth at word boundaries. A
// single word wider than the line gets its own line rather than being broken.
func wrap(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	limit := fixed.I(maxWidth)
	lines := make([]string, 0, 4)
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if font.MeasureString(face, candidate) > limit {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	return append(lines, current)
}

// Templates lists the available template names for the settings surface.
func Templates() []string {
	out := make([]string, 0, len(templates))
	for name := range templates {
		out = append(out, name)
	}
	return out
}
