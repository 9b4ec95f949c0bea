package worlds

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/worldfile"
)

// Ext is the file extension of world files
const Ext = ".world"

var (
	ErrWorldNotFound = errors.New("world not found")
	ErrInvalidWorld  = errors.New("invalid world")
	ErrInvalidName   = errors.New("invalid world name")
)

// Info describes a world file for listings
type Info struct {
	Name            string `json:"name"`
	Filename        string `json:"filename"`
	Agent           string `json:"agent"`
	Heading         string `json:"heading"`
	HorizontalWalls int    `json:"horizontal_walls"`
	VerticalWalls   int    `json:"vertical_walls"`
}

// Manager loads world files from a directory and caches the decoded
// descriptions
type Manager struct {
	dir           string
	width, height int
	worlds        map[string]*worldfile.Description
	mu            sync.RWMutex
}

// NewManager creates a manager over dir. Worlds are validated against a
// width x height grid.
func NewManager(dir string, width, height int) (*Manager, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("worlds directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("worlds directory %s is not a directory", dir)
	}
	return &Manager{
		dir:    dir,
		width:  width,
		height: height,
		worlds: make(map[string]*worldfile.Description),
	}, nil
}

// Dir returns the managed directory
func (m *Manager) Dir() string { return m.dir }

// Path returns the file path for a world name
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, strings.TrimSuffix(name, Ext)+Ext)
}

func checkName(name string) (string, error) {
	name = strings.TrimSuffix(name, Ext)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return name, nil
}

// Load returns the named world, reading it from disk on first use
func (m *Manager) Load(name string) (*worldfile.Description, error) {
	name, err := checkName(name)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	if d, ok := m.worlds[name]; ok {
		m.mu.RUnlock()
		return d, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.worlds[name]; ok {
		return d, nil
	}

	data, err := os.ReadFile(m.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%q: %w", name, ErrWorldNotFound)
		}
		return nil, fmt.Errorf("read world %q: %w", name, err)
	}

	d, err := worldfile.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWorld, name, err)
	}
	if err := worldfile.Validate(d, m.width, m.height); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWorld, name, err)
	}

	m.worlds[name] = d
	return d, nil
}

// List describes every loadable world in the directory. Files that fail to
// decode or validate are skipped.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read worlds directory: %w", err)
	}

	infos := []*Info{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Ext {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), Ext)
		d, err := m.Load(name)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			Name:            name,
			Filename:        entry.Name(),
			Agent:           fmt.Sprintf("(%d,%d)", d.AgentX, d.AgentY),
			Heading:         engine.Direction(d.Direction).String(),
			HorizontalWalls: len(d.Horizontal),
			VerticalWalls:   len(d.Vertical),
		})
	}
	return infos, nil
}

// Save validates d and writes it under name, replacing the cached copy
func (m *Manager) Save(name string, d *worldfile.Description) error {
	name, err := checkName(name)
	if err != nil {
		return err
	}
	if err := worldfile.Validate(d, m.width, m.height); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorld, err)
	}

	var buf bytes.Buffer
	if err := worldfile.Encode(&buf, d); err != nil {
		return fmt.Errorf("encode world: %w", err)
	}
	if err := os.WriteFile(m.Path(name), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write world: %w", err)
	}

	m.mu.Lock()
	m.worlds[name] = d
	m.mu.Unlock()
	return nil
}

// RefreshCache drops every cached world so the next Load rereads the disk
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worlds = make(map[string]*worldfile.Description)
}
