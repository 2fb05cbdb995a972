// Package reaction runs the declarative action lists attached to channel
// lifecycle points and custom functions.
package reaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/condition"
	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/session"
)

// Kind names an action. The core only interprets KindCancel; every other
// kind is handed to the Executor.
type Kind string

const (
	KindCancel    Kind = "cancel"
	KindTell      Kind = "tell"
	KindCommand   Kind = "command"
	KindConsole   Kind = "console"
	KindBroadcast Kind = "broadcast"
	KindSound     Kind = "sound"
	KindLog       Kind = "log"
)

var knownKinds = map[Kind]bool{
	KindCancel: true, KindTell: true, KindCommand: true, KindConsole: true,
	KindBroadcast: true, KindSound: true, KindLog: true,
}

// Action is one step of a Reaction.
type Action struct {
	Kind  Kind
	Value format.Candidate
}

// Executor performs side effects for actions. It is supplied by the host.
type Executor interface {
	Execute(ctx context.Context, kind Kind, value string, subject *session.Session) error
}

// Reaction is an ordered action list. A nil Reaction does nothing.
type Reaction struct {
	Actions []Action
}

// Parse builds a Reaction from a list of actions. Each entry is either a
// scalar "kind: value" (or a bare kind), or a map with a single kind key
// and an optional condition.
func Parse(n *yaml.Node) (*Reaction, error) {
	for n != nil && (n.Kind == yaml.DocumentNode || n.Kind == yaml.AliasNode) {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
		} else if len(n.Content) > 0 {
			n = n.Content[0]
		} else {
			n = nil
		}
	}
	if n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil, nil
	}

	items := n.Content
	if n.Kind != yaml.SequenceNode {
		items = []*yaml.Node{n}
	}

	r := &Reaction{}
	for i, item := range items {
		a, err := parseAction(item)
		if err != nil {
			return nil, fmt.Errorf("action[%d]: %w", i, err)
		}
		r.Actions = append(r.Actions, a)
	}
	return r, nil
}

func parseAction(n *yaml.Node) (Action, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		kind, value, _ := strings.Cut(n.Value, ":")
		return newAction(kind, strings.TrimSpace(value), nil)
	case yaml.MappingNode:
		cond, err := format.ParseCondition(format.Lookup(n, "condition"))
		if err != nil {
			return Action{}, err
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if key == "condition" {
				continue
			}
			return newAction(key, n.Content[i+1].Value, cond)
		}
		return Action{}, fmt.Errorf("line %d: action map has no kind", n.Line)
	}
	return Action{}, fmt.Errorf("line %d: unexpected action", n.Line)
}

func newAction(kind, value string, cond *condition.Condition) (Action, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	if !knownKinds[k] {
		return Action{}, fmt.Errorf("unknown action kind %q", kind)
	}
	c, err := format.NewCandidate(value, cond)
	if err != nil {
		return Action{}, err
	}
	return Action{Kind: k, Value: c}, nil
}

// Run executes the actions in order for subject. It reports true when a
// cancel action ran. Executor errors are logged and do not stop the run.
func (r *Reaction) Run(ctx context.Context, exec Executor, doc map[string]any, subject *session.Session, logger *slog.Logger) (cancelled bool) {
	if r == nil {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, a := range r.Actions {
		if !a.Value.Condition.Evaluate(doc) {
			continue
		}
		if a.Kind == KindCancel {
			return true
		}
		if exec == nil {
			continue
		}
		if err := exec.Execute(ctx, a.Kind, a.Value.Expand(doc), subject); err != nil {
			logger.Warn("reaction action failed", "kind", a.Kind, "error", err)
		}
	}
	return false
}
