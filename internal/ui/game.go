package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/subham/flightsearch/internal/field"
	"github.com/subham/flightsearch/internal/logger"
	"github.com/subham/flightsearch/internal/provider"
)

const (
	screenWidth  = 800
	screenHeight = 480

	fieldY      = 84
	fieldWidth  = 340
	fieldHeight = 56
	swapWidth   = 40

	rowHeight       = 24
	maxDropdownRows = 11

	commitTimeout = 15 * time.Second
)

var (
	colorBackground = color.RGBA{0x0a, 0x0a, 0x0a, 0xff}
	colorField      = color.RGBA{0x1a, 0x1a, 0x1a, 0xff}
	colorFocus      = color.RGBA{0x00, 0xbb, 0xff, 0xff}
	colorDropdown   = color.RGBA{0x16, 0x16, 0x16, 0xff}
	colorHighlight  = color.RGBA{0x00, 0x3a, 0x55, 0xff}
	colorMuted      = color.RGBA{0x88, 0x88, 0x88, 0xff}
	colorDim        = color.RGBA{0x55, 0x55, 0x55, 0xff}
	colorError      = color.RGBA{0xff, 0x66, 0x44, 0xff}
)

// SubmitFunc receives the resolved codes once both fields commit.
type SubmitFunc func(origin, destination string)

// Option configures a Game.
type Option func(*Game)

// WithSubmit sets the callback run after a successful search submit.
func WithSubmit(fn SubmitFunc) Option {
	return func(g *Game) { g.onSubmit = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Game) { g.log = logger.Component(l, "ui") }
}

// Game implements ebiten.Game for the origin and destination pickers.
type Game struct {
	fields   [2]*field.Controller
	onSubmit SubmitFunc
	log      *slog.Logger

	focus  int
	open   bool
	cursor int
	ticks  int
	chars  []rune

	mu        sync.Mutex
	status    string
	statusErr bool
	busy      bool

	fontFaceSm *text.GoTextFace
	fontFace   *text.GoTextFace
	fontFaceLg *text.GoTextFace
}

// NewGame creates a Game driving the two field controllers. The origin field
// starts focused.
func NewGame(origin, destination *field.Controller, opts ...Option) *Game {
	g := &Game{
		fields: [2]*field.Controller{origin, destination},
		log:    logger.Component(nil, "ui"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.initFonts()
	origin.OnFocus()
	return g
}

func (g *Game) initFonts() {
	regSource, err := text.NewGoTextFaceSource(regularFontData())
	if err != nil {
		g.log.Error("loading regular font failed", slog.String("error", err.Error()))
		return
	}
	medSource, err := text.NewGoTextFaceSource(mediumFontData())
	if err != nil {
		medSource = regSource
	}
	boldSource, err := text.NewGoTextFaceSource(boldFontData())
	if err != nil {
		boldSource = medSource
	}
	g.fontFaceSm = &text.GoTextFace{Source: regSource, Size: 12}
	g.fontFace = &text.GoTextFace{Source: medSource, Size: 15}
	g.fontFaceLg = &text.GoTextFace{Source: boldSource, Size: 22}
}

func (g *Game) focused() *field.Controller { return g.fields[g.focus] }

// Update is called every tick.
func (g *Game) Update() error {
	g.ticks++

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyTab):
		g.setFocus(1 - g.focus)
		return nil
	case inpututil.IsKeyJustPressed(ebiten.KeyF2):
		g.swap()
		return nil
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		g.escape()
		return nil
	}

	g.chars = ebiten.AppendInputChars(g.chars[:0])
	if len(g.chars) > 0 {
		g.typeText(string(g.chars))
	}
	if repeatingKeyPressed(ebiten.KeyBackspace) {
		g.backspace()
	}
	if repeatingKeyPressed(ebiten.KeyDown) {
		g.moveCursor(1)
	}
	if repeatingKeyPressed(ebiten.KeyUp) {
		g.moveCursor(-1)
	}
	if _, dy := ebiten.Wheel(); dy < 0 {
		g.moveCursor(1)
	} else if dy > 0 {
		g.moveCursor(-1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeyNumpadEnter) {
		g.enter()
	}
	return nil
}

// repeatingKeyPressed fires once on press and then repeatedly while held.
func repeatingKeyPressed(key ebiten.Key) bool {
	const (
		delay    = 20
		interval = 3
	)
	d := inpututil.KeyPressDuration(key)
	if d == 1 {
		return true
	}
	return d >= delay && (d-delay)%interval == 0
}

func (g *Game) setFocus(i int) {
	g.focused().OnBlur()
	g.focus = i
	g.open = false
	g.cursor = 0
	g.focused().OnFocus()
}

func (g *Game) swap() {
	origin, destination := field.Swap(g.fields[0], g.fields[1])
	g.open = false
	g.cursor = 0
	g.log.Debug("fields swapped", slog.String("origin", origin), slog.String("destination", destination))
}

func (g *Game) escape() {
	if g.open {
		g.open = false
		return
	}
	g.focused().OnSelect(nil)
}

// typeText appends typed characters. Typing over a selected option starts a
// new keyword.
func (g *Game) typeText(s string) {
	f := g.focused()
	v := f.View()
	base := v.RawText
	if v.Selected != nil && base == v.Selected.Label {
		base = ""
	}
	f.OnInput(base+s, field.ReasonInput)
	g.open = true
	g.cursor = 0
}

func (g *Game) backspace() {
	f := g.focused()
	v := f.View()
	if v.RawText == "" {
		return
	}
	next := trimLastRune(v.RawText)
	if v.Selected != nil && v.RawText == v.Selected.Label {
		next = ""
	}
	if next == "" {
		f.OnInput("", field.ReasonClear)
	} else {
		f.OnInput(next, field.ReasonInput)
	}
	g.open = next != ""
	g.cursor = 0
}

func (g *Game) moveCursor(delta int) {
	f := g.focused()
	if !g.open {
		g.open = true
		f.OnOpenDropdown()
		return
	}
	n := len(f.View().Options)
	g.cursor = clampCursor(g.cursor+delta, n)
	if delta > 0 && nearBottom(g.cursor, n) {
		f.OnScrollNearBottom()
	}
}

func (g *Game) enter() {
	f := g.focused()
	if g.open {
		if opts := f.View().Options; len(opts) > 0 {
			picked := opts[clampCursor(g.cursor, len(opts))]
			f.OnSelect(&picked)
			g.open = false
			g.cursor = 0
			return
		}
	}
	g.submit()
}

// submit commits both fields off the game loop, since resolving free text
// may need a provider round trip.
func (g *Game) submit() {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return
	}
	g.busy = true
	g.status, g.statusErr = "Resolving locations...", false
	g.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
		defer cancel()

		origin, err := g.fields[0].Commit(ctx)
		var destination string
		if err == nil {
			destination, err = g.fields[1].Commit(ctx)
		}

		g.mu.Lock()
		g.busy = false
		if err != nil {
			g.status, g.statusErr = submitMessage(err), true
			g.mu.Unlock()
			g.log.Info("search not submitted", slog.String("error", err.Error()))
			return
		}
		g.status, g.statusErr = fmt.Sprintf("Searching flights %s to %s", origin, destination), false
		g.mu.Unlock()

		g.log.Info("search submitted", slog.String("origin", origin), slog.String("destination", destination))
		if g.onSubmit != nil {
			g.onSubmit(origin, destination)
		}
	}()
}

func submitMessage(err error) string {
	var inputErr *field.InputError
	if errors.As(err, &inputErr) {
		return inputErr.Message
	}
	return provider.Message(err)
}

// Draw renders the entire screen.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackground)
	if g.fontFace == nil {
		return
	}

	drawText(screen, "Where are you flying?", 24, 20, g.fontFaceLg, color.White)

	originX := float32(24)
	swapX := originX + fieldWidth + 8
	destX := swapX + swapWidth + 8

	views := [2]field.View{g.fields[0].View(), g.fields[1].View()}
	g.drawField(screen, "From", views[0], originX, fieldY)
	g.drawField(screen, "To", views[1], destX, fieldY)

	drawRoundedRect(screen, swapX, fieldY+12, swapWidth, fieldHeight-24, 8, colorField)
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(swapX+swapWidth/2), float64(fieldY+19))
	op.ColorScale.ScaleWithColor(colorMuted)
	op.PrimaryAlign = text.AlignCenter
	text.Draw(screen, "F2", g.fontFaceSm, op)

	if g.open {
		x := originX
		if g.focus == 1 {
			x = destX
		}
		g.drawDropdown(screen, views[g.focus], x, fieldY+fieldHeight+6)
	}

	g.mu.Lock()
	status, statusErr := g.status, g.statusErr
	g.mu.Unlock()
	if status != "" {
		clr := color.Color(color.White)
		if statusErr {
			clr = colorError
		}
		drawText(screen, status, 24, screenHeight-56, g.fontFace, clr)
	}
	drawText(screen, "Tab switch field   Up/Down browse   Enter select or search   F2 swap   Esc close",
		24, screenHeight-28, g.fontFaceSm, colorDim)
}

// Layout returns the logical screen dimensions.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func (g *Game) drawField(screen *ebiten.Image, label string, v field.View, x, y float32) {
	drawText(screen, label, float64(x), float64(y-20), g.fontFaceSm, colorMuted)

	if v.Focused {
		drawRoundedRect(screen, x-2, y-2, fieldWidth+4, fieldHeight+4, 12, colorFocus)
	}
	drawRoundedRect(screen, x, y, fieldWidth, fieldHeight, 10, colorField)

	tx, ty := float64(x+14), float64(y+16)
	switch {
	case v.ShowDisplay:
		code := v.Selected.Code
		drawText(screen, code, tx, float64(y+13), g.fontFaceLg, color.White)
		offset := textWidth(code, g.fontFaceLg) + 10
		name := truncateText(v.DisplayText, g.fontFace, float64(fieldWidth-28)-offset)
		drawText(screen, name, tx+offset, ty+2, g.fontFace, colorMuted)
	case v.RawText == "" && !v.Focused:
		drawText(screen, "City or airport", tx, ty, g.fontFace, colorDim)
	default:
		shown := truncateLeft(v.RawText, g.fontFace, float64(fieldWidth-40))
		if v.Focused && g.ticks%60 < 30 {
			shown += "|"
		}
		drawText(screen, shown, tx, ty, g.fontFace, color.White)
	}

	if v.Loading {
		pulse := float32(g.ticks%30) / 30
		vector.DrawFilledCircle(screen, x+fieldWidth-16, y+fieldHeight/2, 3+2*pulse, colorFocus, true)
	}
}

func (g *Game) drawDropdown(screen *ebiten.Image, v field.View, x, y float32) {
	rows := dropdownRows(v)
	start := windowStart(rows, g.cursor, maxDropdownRows)
	end := min(start+maxDropdownRows, len(rows))

	var footer string
	var footerClr color.Color = colorMuted
	switch {
	case len(rows) == 0 && v.Loading:
		footer = "Loading..."
	case len(rows) == 0:
		footer = v.NoOptionsText
		if v.Error != "" {
			footerClr = colorError
		}
	case v.LoadingMore:
		footer = "Loading more..."
	case v.Error != "":
		footer, footerClr = v.Error, colorError
	}

	lines := end - start
	if footer != "" {
		lines++
	}
	height := float32(lines*rowHeight + 8)
	drawRoundedRect(screen, x, y, fieldWidth, height, 10, colorDropdown)

	ry := y + 4
	for _, r := range rows[start:end] {
		switch r.kind {
		case rowHeader:
			drawText(screen, strings.ToUpper(truncateText(r.text, g.fontFaceSm, fieldWidth-28)),
				float64(x+14), float64(ry+6), g.fontFaceSm, colorDim)
		case rowOption:
			if r.option == g.cursor {
				vector.DrawFilledRect(screen, x+4, ry, fieldWidth-8, rowHeight, colorHighlight, false)
			}
			codeW := textWidth(r.code, g.fontFace)
			drawText(screen, truncateText(r.text, g.fontFace, float64(fieldWidth-44)-codeW),
				float64(x+24), float64(ry+4), g.fontFace, color.White)
			drawText(screen, r.code, float64(x+fieldWidth-14)-codeW, float64(ry+4), g.fontFace, colorMuted)
		}
		ry += rowHeight
	}
	if footer != "" {
		drawText(screen, truncateText(footer, g.fontFaceSm, fieldWidth-28),
			float64(x+14), float64(ry+6), g.fontFaceSm, footerClr)
	}
}

// drawRoundedRect draws a filled rounded rectangle.
func drawRoundedRect(screen *ebiten.Image, x, y, w, h, r float32, clr color.Color) {
	// Center fill
	vector.DrawFilledRect(screen, x+r, y, w-2*r, h, clr, true)
	// Left fill
	vector.DrawFilledRect(screen, x, y+r, r, h-2*r, clr, true)
	// Right fill
	vector.DrawFilledRect(screen, x+w-r, y+r, r, h-2*r, clr, true)
	// Four corners
	vector.DrawFilledCircle(screen, x+r, y+r, r, clr, true)
	vector.DrawFilledCircle(screen, x+w-r, y+r, r, clr, true)
	vector.DrawFilledCircle(screen, x+r, y+h-r, r, clr, true)
	vector.DrawFilledCircle(screen, x+w-r, y+h-r, r, clr, true)
}

func drawText(screen *ebiten.Image, s string, x, y float64, face *text.GoTextFace, clr color.Color) {
	if face == nil {
		return
	}
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, s, face, op)
}

// textWidth measures the pixel width of a string with the given font face.
func textWidth(s string, face *text.GoTextFace) float64 {
	if face == nil {
		return 0
	}
	w, _ := text.Measure(s, face, 0)
	return w
}

// truncateText shortens s from the end with an ellipsis to fit maxWidth.
func truncateText(s string, face *text.GoTextFace, maxWidth float64) string {
	if textWidth(s, face) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if textWidth(candidate, face) <= maxWidth {
			return candidate
		}
	}
	return ""
}

// truncateLeft keeps the end of s, which is where the caret is.
func truncateLeft(s string, face *text.GoTextFace, maxWidth float64) string {
	runes := []rune(s)
	for len(runes) > 0 && textWidth(string(runes), face) > maxWidth {
		runes = runes[1:]
	}
	return string(runes)
}
