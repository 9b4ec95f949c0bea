// Package layout contains the procedural world generators.
//
// Every generator writes directly into a *world.Grid and draws its random
// numbers from a Rand, so a seeded *rand.Rand fully determines the result.
// Generators never touch the robot; the caller decides where it stands
// afterwards (see engine.Simulation).
//
// Available layouts:
//   - BallString: balls along the interior border ring
//   - BallChaos: a Galton-board style histogram of balls
//   - BallPath: a fixed six-run trail of balls
//   - Cave: two irregular wall bands along the top and bottom
//   - Church: a church-shaped wall outline with a landmark ball
package layout
