// Package websocket streams live robot worlds to browser viewers.
//
// A Hub owns every viewer connection and runs a single delivery goroutine.
// Viewers attach to one session with /ws?session=<id> and receive JSON
// messages:
//
//	{"session_id":"a1b2","event":"redraw",
//	 "region":{"from_x":0,"from_y":2,"to_x":2,"to_y":4},
//	 "cells":["###","#o.","#.."],"agent":{"x":1,"y":3},"direction":"east"}
//
// Redraw messages come from SessionRenderer, which the session manager
// attaches to each simulation. Cells use the row glyphs of the world package
// ('#' wall, 'o' ball, '.' empty) with the top row first. State messages
// carry a full engine.State snapshot.
//
// Publishing never blocks the simulation: when the hub inbox is full the
// message is dropped, and a viewer whose queue is full is disconnected.
// Incoming frames are read only to keep the connection alive.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	manager := session.NewManager(session.WithRendererFactory(hub.Renderer))
package websocket
