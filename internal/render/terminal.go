// Package render draws env frames to a terminal or to PNG files.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"snakeql/internal/env"
)

// NoAction is passed to Render for frames without a chosen move, such as
// the final one.
const NoAction env.Action = -1

// Terminal handles terminal rendering
type Terminal struct {
	out   io.Writer
	clear bool
}

// NewTerminal creates a renderer writing to out. With clear set, each frame
// starts by clearing the screen.
func NewTerminal(out io.Writer, clear bool) *Terminal {
	return &Terminal{out: out, clear: clear}
}

// Render draws the frame and a status line
func (t *Terminal) Render(f env.Frame, action env.Action) error {
	w := bufio.NewWriter(t.out)
	if t.clear {
		w.WriteString("\033[H\033[2J")
	}

	cols := f.Width / f.BlockSize
	rows := f.Height / f.BlockSize

	// Build grid
	grid := make([][]rune, rows)
	for y := range grid {
		grid[y] = make([]rune, cols)
		for x := range grid[y] {
			grid[y][x] = '·'
		}
	}

	inside := func(p env.Point) (int, int, bool) {
		x, y := p.X/f.BlockSize, p.Y/f.BlockSize
		return x, y, p.X >= 0 && p.Y >= 0 && x < cols && y < rows
	}

	if x, y, ok := inside(f.Food); ok {
		grid[y][x] = '●'
	}

	// Tail first so the head wins when segments overlap after a collision
	for i := len(f.Snake) - 1; i >= 0; i-- {
		x, y, ok := inside(f.Snake[i])
		if !ok {
			continue
		}
		if i == 0 {
			grid[y][x] = directionHead(f.Dir)
		} else {
			grid[y][x] = '█'
		}
	}

	// Draw border and grid
	border := strings.Repeat("──", cols)
	fmt.Fprintf(w, "┌%s┐\n", border)
	for _, row := range grid {
		w.WriteString("│")
		for _, c := range row {
			fmt.Fprintf(w, " %c", c)
		}
		w.WriteString("│\n")
	}
	fmt.Fprintf(w, "└%s┘\n", border)

	// Status line
	actionDisplay := "---"
	if action >= 0 && action < env.NumActions {
		actionDisplay = strings.ToUpper(action.String())
	}
	fmt.Fprintf(w, "  Frame: %3d | Score: %d | Length: %d | Action: %s\n",
		f.Frame, f.Score, len(f.Snake), actionDisplay)

	if !f.Alive {
		fmt.Fprintf(w, "  DEAD: %s\n", f.Death)
	}
	return w.Flush()
}

func directionHead(dir env.Direction) rune {
	switch dir {
	case env.DirUp:
		return '▲'
	case env.DirRight:
		return '▶'
	case env.DirDown:
		return '▼'
	case env.DirLeft:
		return '◀'
	}
	return 'O'
}
