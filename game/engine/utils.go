package engine

import "github.com/wricardo/charles/game/world"

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to Position) int {
	dx := from.X - to.X
	if dx < 0 {
		dx = -dx
	}
	dy := from.Y - to.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// LocalView renders the 3x3 block around p, top row first, with the robot
// drawn as an arrow in the middle
func LocalView(g *world.Grid, p Position, dir Direction) []string {
	arrows := [4]byte{'^', '<', 'v', '>'}
	rows := make([]string, 0, 3)
	for y := p.Y + 1; y >= p.Y-1; y-- {
		row := make([]byte, 0, 3)
		for x := p.X - 1; x <= p.X+1; x++ {
			if x == p.X && y == p.Y && dir.Valid() {
				row = append(row, arrows[dir])
				continue
			}
			row = append(row, g.At(x, y).Glyph())
		}
		rows = append(rows, string(row))
	}
	return rows
}

// Reachable returns every interior non-wall cell the robot can walk to from
// start, using four-way moves
func Reachable(g *world.Grid, start Position) map[Position]bool {
	visited := map[Position]bool{}
	if !g.IsInterior(start.X, start.Y) || g.At(start.X, start.Y) == world.Wall {
		return visited
	}

	queue := []Position{start}
	visited[start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range []Direction{North, West, South, East} {
			dx, dy := d.Delta()
			next := Position{X: cur.X + dx, Y: cur.Y + dy}
			if visited[next] || !g.IsInterior(next.X, next.Y) || g.At(next.X, next.Y) == world.Wall {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return visited
}

// CountReachableBalls counts the balls in the robot's reachable area
func CountReachableBalls(g *world.Grid, start Position) int {
	count := 0
	for p := range Reachable(g, start) {
		if g.At(p.X, p.Y) == world.Ball {
			count++
		}
	}
	return count
}
