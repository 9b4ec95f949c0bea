// Package worldfile reads and writes world description files.
//
// A world file is a list of whitespace separated integers:
//
//	agentX agentY direction refBallX refBallY
//	horizontalWallCount  (x y length) * horizontalWallCount
//	verticalWallCount    (x y length) * verticalWallCount
//
// Directions use 0=North, 1=West, 2=South, 3=East. Every run paints
// length+1 wall cells, along +x for horizontal runs and +y for vertical runs.
// The border ring is implied and never listed.
package worldfile
