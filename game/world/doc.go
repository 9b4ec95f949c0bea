// Package world provides the cell grid Charles lives on.
//
// The grid is the single source of truth for cell contents. It knows nothing
// about the robot; bounds checks, the permanent border ring and the bulk wall
// and ball operations live here so every generator and loader goes through the
// same rules.
//
// Coordinates:
//
// Cells are addressed as (x, y) with x growing East and y growing North, so
// row 0 is the bottom border and row Height-1 the top border. Interior cells
// satisfy 1 <= x <= Width-2 and 1 <= y <= Height-2.
//
// Usage:
//
//	g := world.New(world.DefaultWidth, world.DefaultHeight)
//	g.BuildBorder()
//	if err := g.PlaceRectangleWalls(5, 5, 10, 4); err != nil {
//		log.Fatal(err)
//	}
//	g.PlaceBall(3, 3)
//
// Wall operations reject out-of-range input with ErrOutOfBounds and write
// nothing; ball placement silently ignores out-of-range cells.
package world
