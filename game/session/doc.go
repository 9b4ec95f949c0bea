// Package session keeps the live robot worlds served by the API.
//
// Manager owns the in-memory sessions. Each session wraps one
// engine.Simulation together with its world name and access times. IDs are
// case-insensitive; generated IDs are 4 hex characters from crypto/rand.
//
// Sessions can be written through a SessionPersistence. FilePersistence keeps
// one JSON document per session in a directory and RedisPersistence keeps
// the same document under a prefixed key. Both store the full engine.State,
// so a restored session resumes with its grid, robot, step delay and history.
//
// Usage:
//
//	store, err := session.NewFilePersistence("sessions")
//	if err != nil {
//		return err
//	}
//	manager := session.NewManager(session.WithPersistence(store))
//	if err := manager.LoadPersistedSessions(); err != nil {
//		return err
//	}
//	sess, err := manager.Create("", "labyrinth", description)
//
// Idle sessions are dropped from memory by CleanupExpiredSessions, usually
// driven by RunCleanup. Their persisted copies remain and Get loads them
// again on the next request.
package session
