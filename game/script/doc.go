// Package script implements the small command language used to drive
// Charles from files, the CLI and the API.
//
// Example:
//
//	// walk to the east wall dropping balls
//	while not wall_ahead {
//		put_ball
//		step
//	}
//	turn_left
//	repeat 4 { step 2 turn_right }
//	if on_ball { get_ball } else { put_ball }
//
// Actions: step [n], steps n, turn_left, turn_right, put_ball, get_ball,
// draw_line_with_balls n, rest ms, follow_path [budget], fill_cave [columns],
// circle_church [budget]. Conditions: on_ball, wall_ahead, north, each
// optionally preceded by not.
package script
