// Package routines holds the classic navigation exercises for Charles,
// written as plain loops over engine.Robot so they run on any grid size
// without growing the stack.
//
// Routines return the first illegal action they hit, wrapped with the stage
// that failed; errors.Is still matches the engine sentinels.
package routines
