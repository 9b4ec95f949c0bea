package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/worldfile"
)

func testManager(opts ...Option) *Manager {
	base := []Option{WithSimulationOptions(engine.WithSize(12, 10), engine.WithPacing(noPause))}
	return NewManager(append(base, opts...)...)
}

// corridor is a 12x10 world with one wall run and the robot facing north
func corridor() *worldfile.Description {
	return &worldfile.Description{
		AgentX:     2,
		AgentY:     2,
		Direction:  int(engine.North),
		BallX:      5,
		BallY:      5,
		Horizontal: []worldfile.Run{{X: 3, Y: 6, Length: 2}},
		Vertical:   []worldfile.Run{},
	}
}

// countingRenderer counts full redraws
type countingRenderer struct {
	mu   sync.Mutex
	full int
}

func (r *countingRenderer) RedrawRegion(engine.Scene, engine.Region) {}
func (r *countingRenderer) RedrawAll(engine.Scene) {
	r.mu.Lock()
	r.full++
	r.mu.Unlock()
}

func (r *countingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full
}

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.Count() != 0 {
		t.Errorf("Expected 0 sessions, got %d", manager.Count())
	}
}

func TestCreate(t *testing.T) {
	manager := testManager()

	t.Run("Create with generated ID", func(t *testing.T) {
		session, err := manager.Create("", "empty", nil)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if len(session.ID) != 4 {
			t.Errorf("Expected 4-character ID, got %q", session.ID)
		}
		if session.Sim == nil {
			t.Fatal("Session simulation is nil")
		}
		if session.CreatedAt.IsZero() || session.LastAccess().IsZero() {
			t.Error("Session timestamps should be set")
		}
	})

	t.Run("Create with world", func(t *testing.T) {
		session, err := manager.Create("maze", "corridor", corridor())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if got := session.Sim.Agent().AgentPosition(); got != (engine.Position{X: 2, Y: 2}) {
			t.Errorf("Expected robot at (2,2), got %v", got)
		}
		if !session.Sim.IsFacingNorth() {
			t.Error("Expected robot facing north")
		}
		if session.Sim.WorldName() != "corridor" {
			t.Errorf("Expected world name corridor, got %q", session.Sim.WorldName())
		}
	})

	t.Run("Duplicate ID is case-insensitive", func(t *testing.T) {
		if _, err := manager.Create("MAZE", "empty", nil); !errors.Is(err, ErrSessionAlreadyExists) {
			t.Errorf("Expected ErrSessionAlreadyExists, got %v", err)
		}
	})

	t.Run("Invalid world is rejected", func(t *testing.T) {
		bad := corridor()
		bad.AgentX = 0
		if _, err := manager.Create("bad", "broken", bad); err == nil {
			t.Error("Expected an error for a world with the robot on the border")
		}
		if _, err := manager.Get("bad"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Failed create should not leave a session, got %v", err)
		}
	})

	t.Run("Invalid ID", func(t *testing.T) {
		if _, err := manager.Create("a/b", "empty", nil); !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("Expected ErrInvalidSessionID, got %v", err)
		}
	})
}

func TestGetListDelete(t *testing.T) {
	manager := testManager()
	created, err := manager.Create("Abcd", "empty", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Create("", "empty", nil); err != nil {
		t.Fatal(err)
	}

	got, err := manager.Get("aBCD")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != created {
		t.Error("Get should return the same session regardless of case")
	}

	if n := len(manager.List()); n != 2 {
		t.Errorf("Expected 2 sessions, got %d", n)
	}

	if err := manager.Delete("abcd"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := manager.Get("abcd"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := manager.Delete("abcd"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on second delete, got %v", err)
	}
	if manager.Count() != 1 {
		t.Errorf("Expected 1 session left, got %d", manager.Count())
	}
}

func TestRendererAttachment(t *testing.T) {
	renderers := map[string]*countingRenderer{}
	var mu sync.Mutex
	manager := testManager(WithRendererFactory(func(id string) engine.Renderer {
		mu.Lock()
		defer mu.Unlock()
		r := &countingRenderer{}
		renderers[id] = r
		return r
	}))

	session, err := manager.Create("view", "empty", nil)
	if err != nil {
		t.Fatal(err)
	}
	r := renderers["view"]
	if r == nil {
		t.Fatal("Renderer factory was not called")
	}

	session.Sim.Reset()
	if r.count() != 1 {
		t.Errorf("Expected 1 full redraw after reset, got %d", r.count())
	}

	if err := manager.DeleteFromMemory("view"); err != nil {
		t.Fatal(err)
	}
	session.Sim.Reset()
	if r.count() != 1 {
		t.Errorf("Detached renderer should not be notified, got %d redraws", r.count())
	}
}

func TestUpdateLastAccessed(t *testing.T) {
	manager := testManager()
	session, err := manager.Create("", "empty", nil)
	if err != nil {
		t.Fatal(err)
	}
	before := session.LastAccess()
	time.Sleep(5 * time.Millisecond)

	if err := manager.UpdateLastAccessed(strings.ToUpper(session.ID)); err != nil {
		t.Fatalf("UpdateLastAccessed: %v", err)
	}
	if !session.LastAccess().After(before) {
		t.Error("LastAccess should move forward")
	}
	if err := manager.UpdateLastAccessed("zzzz"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	manager := testManager()
	old, err := manager.Create("old1", "empty", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Create("new1", "empty", nil); err != nil {
		t.Fatal(err)
	}
	old.Touch(time.Now().Add(-2 * time.Hour))

	if removed := manager.CleanupExpiredSessions(time.Hour); removed != 1 {
		t.Errorf("Expected 1 removed session, got %d", removed)
	}
	if _, err := manager.Get("old1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expired session should be gone, got %v", err)
	}
	if _, err := manager.Get("new1"); err != nil {
		t.Errorf("Fresh session should remain: %v", err)
	}
}

func TestConcurrentCreate(t *testing.T) {
	manager := testManager()
	const n = 20

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := manager.Create("", "empty", nil)
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- s.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("Duplicate session ID %s", id)
		}
		seen[id] = true
	}
	if manager.Count() != n {
		t.Errorf("Expected %d sessions, got %d", n, manager.Count())
	}
}

func TestManagerPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilePersistence(dir, engine.WithPacing(noPause))
	if err != nil {
		t.Fatal(err)
	}

	first := testManager(WithPersistence(store))
	session, err := first.Create("keep", "corridor", corridor())
	if err != nil {
		t.Fatal(err)
	}
	session.Lock()
	if err := session.Sim.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := first.Save("keep"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	session.Unlock()

	t.Run("Get loads from persistence", func(t *testing.T) {
		second := testManager(WithPersistence(store))
		loaded, err := second.Get("keep")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got := loaded.Sim.Agent().AgentPosition(); got != (engine.Position{X: 2, Y: 3}) {
			t.Errorf("Expected robot at (2,3), got %v", got)
		}
		if loaded.World != "corridor" {
			t.Errorf("Expected world corridor, got %q", loaded.World)
		}
		if second.Count() != 1 {
			t.Errorf("Loaded session should be cached, count %d", second.Count())
		}
	})

	t.Run("LoadPersistedSessions", func(t *testing.T) {
		third := testManager(WithPersistence(store))
		if err := third.LoadPersistedSessions(); err != nil {
			t.Fatalf("LoadPersistedSessions: %v", err)
		}
		if third.Count() != 1 {
			t.Errorf("Expected 1 loaded session, got %d", third.Count())
		}
	})

	t.Run("SaveAllSessions", func(t *testing.T) {
		session.Sim.TurnRight()
		if err := first.SaveAllSessions(); err != nil {
			t.Fatalf("SaveAllSessions: %v", err)
		}
		loaded, err := store.Load("keep")
		if err != nil {
			t.Fatal(err)
		}
		if got := loaded.Sim.Agent().AgentDirection(); got != engine.East {
			t.Errorf("Expected robot facing east, got %v", got)
		}
	})

	t.Run("Cleanup keeps persisted copy", func(t *testing.T) {
		session.Touch(time.Now().Add(-time.Hour))
		first.CleanupExpiredSessions(time.Minute)
		if first.Count() != 0 {
			t.Fatalf("Expected no sessions in memory, got %d", first.Count())
		}
		if _, err := first.Get("keep"); err != nil {
			t.Errorf("Expected session to reload from disk: %v", err)
		}
	})

	t.Run("Delete removes persisted copy", func(t *testing.T) {
		if err := first.Delete("keep"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if store.Exists("keep") {
			t.Error("Persisted session should be removed")
		}
	})
}

func TestPruneOrphans(t *testing.T) {
	store, err := NewFilePersistence(t.TempDir(), engine.WithPacing(noPause))
	if err != nil {
		t.Fatal(err)
	}
	manager := testManager(WithPersistence(store))
	for _, id := range []string{"aaaa", "bbbb"} {
		if _, err := manager.Create(id, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	if n := manager.PruneOrphans(); n != 0 {
		t.Errorf("Expected nothing pruned, got %d", n)
	}

	if err := store.Delete("aaaa"); err != nil {
		t.Fatal(err)
	}
	if n := manager.PruneOrphans(); n != 1 {
		t.Errorf("Expected 1 pruned, got %d", n)
	}
	if _, err := manager.Get("aaaa"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected pruned session to be gone, got %v", err)
	}
	if manager.Count() != 1 {
		t.Errorf("Expected 1 session left, got %d", manager.Count())
	}

	if n := testManager().PruneOrphans(); n != 0 {
		t.Errorf("Manager without persistence should prune nothing, got %d", n)
	}
}

func TestPersistedIDsIgnoreCase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilePersistence(dir, engine.WithPacing(noPause))
	if err != nil {
		t.Fatal(err)
	}
	manager := testManager(WithPersistence(store))

	if _, err := manager.Create("MixD", "", nil); err != nil {
		t.Fatal(err)
	}
	if !store.Exists("mixd") || !store.Exists("MIXD") {
		t.Fatal("Persisted session should be found in any case")
	}

	t.Run("Get after eviction", func(t *testing.T) {
		if err := manager.DeleteFromMemory("mixd"); err != nil {
			t.Fatal(err)
		}
		if _, err := manager.Get("MIXD"); err != nil {
			t.Errorf("Expected session to reload from disk, got %v", err)
		}
	})

	t.Run("Delete in another case", func(t *testing.T) {
		if err := manager.Delete("MIXD"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if store.Exists("mixd") {
			t.Error("Persisted session should be removed")
		}
		if _, err := manager.Get("mixd"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Deleted session came back: %v", err)
		}
	})
}
