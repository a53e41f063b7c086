// Package backdrop draws the animated star field behind the terminal. It is
// purely decorative and reads nothing from the rest of the program.
package backdrop

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Interval is the time between animation frames.
const Interval = 120 * time.Millisecond

const (
	starLattice   = 50.0
	starThreshold = 0.95
	drift         = 0.01
	levels        = 12
)

// TickMsg advances the animation.
type TickMsg time.Time

// Tick schedules the next frame.
func Tick() tea.Cmd {
	return tea.Tick(Interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

type cell struct {
	r, g, b float64
	star    float64
}

// sample evaluates the field at normalised coordinates u, v in [0,1) with v
// growing upwards, shifted horizontally by t seconds of drift.
func sample(u, v, t float64) cell {
	u += t * drift

	sx, sy := u*starLattice, v*starLattice
	idX, idY := math.Floor(sx), math.Floor(sy)
	star := 0.0
	if random(idX, idY) > starThreshold {
		dist := math.Hypot(fract(sx)-0.5, fract(sy)-0.5)
		star = 1 - smoothstep(0, 0.1, dist)
	}

	return cell{
		r:    0.1 + 0.3*math.Sin(u*3+v*2),
		g:    0.05 + 0.2*math.Cos(u*2-v*3),
		b:    0.2 + 0.4*math.Sin(u*4+v*1.5),
		star: star,
	}
}

// Frame renders a width x height block at time t (seconds). The same
// arguments always produce the same string.
func Frame(width, height int, t float64) string {
	if width <= 0 || height <= 0 {
		return ""
	}

	rows := make([]string, height)
	for y := 0; y < height; y++ {
		var sb strings.Builder
		var run strings.Builder
		var runColor lipgloss.Color
		flush := func() {
			if run.Len() > 0 {
				sb.WriteString(lipgloss.NewStyle().
					Background(runColor).
					Foreground(lipgloss.Color("#FFFFFF")).
					Render(run.String()))
				run.Reset()
			}
		}

		v := 1 - (float64(y)+0.5)/float64(height)
		for x := 0; x < width; x++ {
			u := (float64(x) + 0.5) / float64(width)
			c := sample(u, v, t)

			ch := ' '
			// A terminal cell spans several lattice cells; any visible star
			// inside the cell lights it.
			if c.star > 0 || starInCell(x, y, width, height, t) {
				ch = '*'
				if c.star < 0.5 {
					ch = '.'
				}
			}

			col := hexColor(c.r+c.star*0.8, c.g+c.star*0.8, c.b+c.star*0.8)
			if col != runColor {
				flush()
				runColor = col
			}
			run.WriteRune(ch)
		}
		flush()
		rows[y] = sb.String()
	}
	return strings.Join(rows, "\n")
}

// starInCell reports whether a lattice star centre falls inside terminal
// cell x, y.
func starInCell(x, y, width, height int, t float64) bool {
	u0 := float64(x)/float64(width) + t*drift
	u1 := float64(x+1)/float64(width) + t*drift
	v0 := 1 - float64(y+1)/float64(height)
	v1 := 1 - float64(y)/float64(height)

	for ix := math.Floor(u0*starLattice - 0.5); ix <= math.Floor(u1*starLattice-0.5); ix++ {
		cx := (ix + 0.5) / starLattice
		if cx < u0 || cx >= u1 {
			continue
		}
		for iy := math.Floor(v0*starLattice - 0.5); iy <= math.Floor(v1*starLattice-0.5); iy++ {
			cy := (iy + 0.5) / starLattice
			if cy < v0 || cy >= v1 {
				continue
			}
			if random(ix, iy) > starThreshold {
				return true
			}
		}
	}
	return false
}

func random(x, y float64) float64 {
	return fract(math.Sin(x*12.9898+y*78.233) * 43758.5453123)
}

func fract(x float64) float64 {
	return x - math.Floor(x)
}

func smoothstep(edge0, edge1, x float64) float64 {
	t := clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// hexColor quantises a colour so neighbouring cells share styles.
func hexColor(r, g, b float64) lipgloss.Color {
	q := func(c float64) int {
		return int(math.Round(clamp(c, 0, 1)*levels) * 255 / levels)
	}
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", q(r), q(g), q(b)))
}
