// Package worlds manages the directory of world files a server offers.
//
// A world is stored as NAME.world in the format read by package worldfile.
// The Manager decodes and validates each file on first use and keeps the
// result in memory until RefreshCache is called.
//
// Usage:
//
//	manager, err := worlds.NewManager("worlds", world.DefaultWidth, world.DefaultHeight)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	d, err := manager.Load("labyrinth")
//	infos, err := manager.List()
//
// Analyze reports how much of a world the robot can reach from its start
// and whether the reference ball is among it.
package worlds
