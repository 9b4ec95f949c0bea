package script

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Program is a parsed robot script
type Program struct {
	Statements []*Statement `parser:"@@*"`
}

type Statement struct {
	Repeat *Repeat `parser:"  @@"`
	While  *While  `parser:"| @@"`
	If     *If     `parser:"| @@"`
	Action *Action `parser:"| @@"`
}

type Action struct {
	Pos lexer.Position

	Name  string `parser:"@('step' | 'steps' | 'turn_left' | 'turn_right' | 'put_ball' | 'get_ball' | 'draw_line_with_balls' | 'rest' | 'follow_path' | 'fill_cave' | 'circle_church')"`
	Count *int   `parser:"@Int?"`
}

type Repeat struct {
	Pos lexer.Position

	Count int          `parser:"'repeat' @Int"`
	Body  []*Statement `parser:"'{' @@* '}'"`
}

type While struct {
	Pos lexer.Position

	Cond *Condition   `parser:"'while' @@"`
	Body []*Statement `parser:"'{' @@* '}'"`
}

type If struct {
	Pos lexer.Position

	Cond *Condition   `parser:"'if' @@"`
	Then []*Statement `parser:"'{' @@* '}'"`
	Else []*Statement `parser:"( 'else' '{' @@* '}' )?"`
}

type Condition struct {
	Not  bool   `parser:"@'not'?"`
	Name string `parser:"@('on_ball' | 'wall_ahead' | 'north')"`
}

var parser = participle.MustBuild[Program]()

// countRules says which actions need, allow or forbid a count
var countRules = map[string]string{
	"step":                 "optional",
	"steps":                "required",
	"draw_line_with_balls": "required",
	"rest":                 "required",
	"fill_cave":            "optional",
	"follow_path":          "optional",
	"circle_church":        "optional",
}

// Parse parses a robot script
func Parse(source string) (*Program, error) {
	return ParseNamed("script", source)
}

// ParseNamed parses a robot script, using name in error positions
func ParseNamed(name, source string) (*Program, error) {
	prog, err := parser.ParseString(name, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := checkCounts(prog.Statements); err != nil {
		return nil, err
	}
	return prog, nil
}

func checkCounts(stmts []*Statement) error {
	for _, s := range stmts {
		switch {
		case s.Action != nil:
			rule := countRules[s.Action.Name]
			if rule == "required" && s.Action.Count == nil {
				return fmt.Errorf("%w: %s: %s needs a count", ErrParse, s.Action.Pos, s.Action.Name)
			}
			if rule == "" && s.Action.Count != nil {
				return fmt.Errorf("%w: %s: %s takes no count", ErrParse, s.Action.Pos, s.Action.Name)
			}
		case s.Repeat != nil:
			if err := checkCounts(s.Repeat.Body); err != nil {
				return err
			}
		case s.While != nil:
			if err := checkCounts(s.While.Body); err != nil {
				return err
			}
		case s.If != nil:
			if err := checkCounts(s.If.Then); err != nil {
				return err
			}
			if err := checkCounts(s.If.Else); err != nil {
				return err
			}
		}
	}
	return nil
}

// String renders the condition as written
func (c *Condition) String() string {
	if c.Not {
		return "not " + c.Name
	}
	return c.Name
}
