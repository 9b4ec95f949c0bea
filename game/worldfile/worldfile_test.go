package worldfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/charles/game/world"
)

const sample = `1 28 3 10 10
2
3 20 5
20 5 0
1
30 2 6
`

func TestDecode(t *testing.T) {
	d, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	want := &Description{
		AgentX: 1, AgentY: 28, Direction: 3, BallX: 10, BallY: 10,
		Horizontal: []Run{{X: 3, Y: 20, Length: 5}, {X: 20, Y: 5, Length: 0}},
		Vertical:   []Run{{X: 30, Y: 2, Length: 6}},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"empty", "", "agent x"},
		{"short header", "1 2 3", "ball x"},
		{"not a number", "1 2 x 4 5 0 0", "direction"},
		{"missing vertical count", "1 2 3 4 5 0", "vertical wall count"},
		{"truncated run", "1 2 3 4 5 1 3 4", "horizontal wall 1 length"},
		{"negative count", "1 2 3 4 5 -1 0", "horizontal wall count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyntax)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, d))

	again, err := Decode(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(d, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyPaintsEveryRun(t *testing.T) {
	d := &Description{
		AgentX: 2, AgentY: 3, Direction: 0, BallX: 40, BallY: 25,
		Horizontal: []Run{{X: 5, Y: 10, Length: 8}, {X: 1, Y: 20, Length: 47}},
		Vertical:   []Run{{X: 30, Y: 1, Length: 12}, {X: 45, Y: 21, Length: 7}},
	}
	g := world.New(world.DefaultWidth, world.DefaultHeight)
	g.PlaceBall(7, 7)
	require.NoError(t, Apply(d, g))

	assert.True(t, g.HasBorder())
	assert.Equal(t, world.Empty, g.At(7, 7), "previous contents are cleared")
	for _, run := range d.Horizontal {
		for _, c := range run.Cells(true) {
			assert.Equal(t, world.Wall, g.At(c[0], c[1]), "horizontal cell %v", c)
		}
	}
	for _, run := range d.Vertical {
		for _, c := range run.Cells(false) {
			assert.Equal(t, world.Wall, g.At(c[0], c[1]), "vertical cell %v", c)
		}
	}
	assert.Equal(t, world.Empty, g.At(14, 10), "runs paint length+1 cells only")
	assert.Equal(t, world.Ball, g.At(40, 25))
	assert.Equal(t, 1, g.Count(world.Ball))
}

func TestValidate(t *testing.T) {
	base := func() *Description {
		return &Description{AgentX: 1, AgentY: 28, Direction: 3, BallX: 10, BallY: 10}
	}

	tests := []struct {
		name   string
		mutate func(d *Description)
		valid  bool
	}{
		{"valid", func(d *Description) {}, true},
		{"agent on border", func(d *Description) { d.AgentX = 0 }, false},
		{"agent outside", func(d *Description) { d.AgentY = 40 }, false},
		{"direction too large", func(d *Description) { d.Direction = 4 }, false},
		{"negative direction", func(d *Description) { d.Direction = -1 }, false},
		{"ball outside", func(d *Description) { d.BallX = 50 }, false},
		{"run past the edge", func(d *Description) { d.Horizontal = []Run{{X: 45, Y: 5, Length: 10}} }, false},
		{"negative run", func(d *Description) { d.Vertical = []Run{{X: 5, Y: 5, Length: -2}} }, false},
		{"wall on agent", func(d *Description) { d.Vertical = []Run{{X: 1, Y: 20, Length: 8}} }, false},
		{"wall on ball", func(d *Description) { d.Horizontal = []Run{{X: 8, Y: 10, Length: 3}} }, false},
		{"run touching the border", func(d *Description) { d.Horizontal = []Run{{X: 0, Y: 5, Length: 49}} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			err := Validate(d, world.DefaultWidth, world.DefaultHeight)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestApplyRejectsInvalidWithoutWriting(t *testing.T) {
	g := world.NewBordered(world.DefaultWidth, world.DefaultHeight)
	g.PlaceBall(3, 3)
	before := g.Rows()

	d := &Description{AgentX: 1, AgentY: 1, Direction: 0, BallX: 5, BallY: 5,
		Horizontal: []Run{{X: 2, Y: 2, Length: 3}, {X: 40, Y: 2, Length: 30}}}
	assert.ErrorIs(t, Apply(d, g), ErrInvalid)
	assert.Equal(t, before, g.Rows())
}

func TestDescribeRoundTrip(t *testing.T) {
	g := world.NewBordered(world.DefaultWidth, world.DefaultHeight)
	require.NoError(t, g.PlaceRectangleWalls(5, 5, 10, 6))
	require.NoError(t, g.PlaceWallSegment(30, 2, 20, false))
	require.NoError(t, g.PlaceWallSegment(40, 8, 8, true))
	g.PlaceBall(20, 20)

	d := Describe(g, 1, 28, 3, 20, 20)
	require.NoError(t, Validate(d, g.Width(), g.Height()))

	rebuilt := world.New(g.Width(), g.Height())
	require.NoError(t, Apply(d, rebuilt))
	if diff := cmp.Diff(g.Rows(), rebuilt.Rows()); diff != "" {
		t.Errorf("describe/apply mismatch (-want +got):\n%s", diff)
	}
}
