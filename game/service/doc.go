// Package service provides the session-scoped operations every transport
// uses to drive Charles.
//
// The service package implements:
//   - Multi-session world management
//   - Single actions and script runs against a session's robot
//   - Layout generation and world file loading
//   - Paginated action history
//
// Core Interfaces:
//
// WorldService is the main service interface. SessionManager stores the
// sessions and their simulations. WorldCatalog gives access to the world
// files on disk.
//
// Usage:
//
//	catalog, _ := worlds.NewManager("worlds", world.DefaultWidth, world.DefaultHeight)
//	svc := service.NewWorldService(session.NewManager(), catalog)
//
//	info, err := svc.CreateSession(ctx, "labyrinth")
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, err := svc.RunProgram(ctx, info.ID, "while not wall_ahead { step }")
//
// Concurrency:
//
// Each session carries its own lock. Operations on one session run one at a
// time, so a long program blocks only its own session. The context passed
// to RunProgram stops the program between actions.
package service
