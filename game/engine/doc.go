// Package engine provides the robot simulation core for Charles.
//
// The engine package implements:
//   - The Agent state machine (position, heading, step delay)
//   - Legality rules for stepping and ball handling
//   - The Renderer contract the core notifies after each mutation
//   - The Simulation context owning the grid, the robot and the history
//
// Core Types:
//
// Agent walks on a *world.Grid and reports illegal actions as
// *IllegalAction values. Simulation wraps one grid and one Agent, records
// every action in a history and exposes the layout generators and the world
// file loader. Simulation and Agent both satisfy Robot, the surface the
// navigation routines and the script interpreter drive.
//
// Usage:
//
//	sim, err := engine.NewSimulation(engine.WithSeed(42))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sim.GenerateBallPath()
//	if err := sim.Step(); errors.Is(err, engine.ErrStepIntoWall) {
//		fmt.Println(engine.KindOf(err).Message())
//	}
//
// Coordinates:
//
// x grows East and y grows North. The robot starts at (1, Height-2), the
// top-left interior cell, facing East. Directions are numbered North=0,
// West=1, South=2, East=3; a left turn adds one modulo four.
//
// Failed actions are true no-ops: the grid, the position and the heading are
// unchanged and no redraw or pause happens.
package engine
