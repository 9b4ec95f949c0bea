package layout

import "github.com/wricardo/charles/game/world"

// Rand is the subset of *rand.Rand the generators use
type Rand interface {
	Intn(n int) int
}

const (
	ChaosTrials = 40
	ChaosSteps  = 9
	ChaosBins   = 2*ChaosSteps + 1
)

// Bins holds the number of trials that ended at each displacement.
// Index ChaosSteps is zero displacement.
type Bins [ChaosBins]int

// Total returns the number of trials counted in b
func (b Bins) Total() int {
	total := 0
	for _, n := range b {
		total += n
	}
	return total
}

// BallString puts a ball on every cell of the ring just inside the border
func BallString(g *world.Grid) {
	w, h := g.Width(), g.Height()
	for x := 1; x <= w-2; x++ {
		g.PlaceBall(x, 1)
		g.PlaceBall(x, h-2)
	}
	for y := 1; y <= h-2; y++ {
		g.PlaceBall(1, y)
		g.PlaceBall(w-2, y)
	}
}

// BallChaos runs ChaosTrials random walks of ChaosSteps steps each and draws
// the resulting displacement histogram as rows of balls. Bin i fills row
// Height-2-i from the east wall westward.
func BallChaos(g *world.Grid, rng Rand) Bins {
	var bins Bins
	for trial := 0; trial < ChaosTrials; trial++ {
		pos := ChaosSteps
		for step := 0; step < ChaosSteps; step++ {
			switch rng.Intn(3) + 1 {
			case 1:
				pos--
			case 3:
				pos++
			}
		}
		bins[pos]++
	}

	w, h := g.Width(), g.Height()
	for i, count := range bins {
		y := h - 2 - i
		if y < 1 {
			break
		}
		for j := 0; j < count; j++ {
			x := w - 2 - j
			if x < 1 {
				break
			}
			g.PlaceBall(x, y)
		}
	}
	return bins
}

// BallPath resets g and lays the six-run trail that starts at (1, Height-2)
func BallPath(g *world.Grid) {
	g.Reset()
	w, h := g.Width(), g.Height()

	for x := 1; x < w-8; x++ {
		g.PlaceBall(x, h-2)
	}
	for y := h - 2; y > h/2; y-- {
		g.PlaceBall(w-8, y)
	}
	for x := w - 8; x >= 1; x-- {
		g.PlaceBall(x, h/2)
	}
	for y := h / 2; y >= 4; y-- {
		g.PlaceBall(1, y)
	}
	for x := 1; x <= w/3; x++ {
		g.PlaceBall(x, 4)
	}
	for y := 4; y <= h*2/3; y++ {
		g.PlaceBall(w/3, y)
	}
}
