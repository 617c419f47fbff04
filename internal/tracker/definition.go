package tracker

import (
	"context"
	"fmt"
	"strings"
)

// ExecuteFunc is the behavior attached to an executable task definition. The
// executor invokes it with the live task instance; its return value or error
// becomes the instance's outcome.
type ExecuteFunc func(ctx context.Context, t *Task) (any, error)

// Definition is the immutable blueprint a task instance is built from: a
// name, optional executable behavior, and an ordered list of sub-definitions.
// A definition without an ExecuteFunc is externally managed. Definitions are
// shared across instances and never reference them back.
type Definition struct {
	name     string
	execute  ExecuteFunc
	parent   *Definition
	subDefs  []*Definition
	unusable bool
}

// SubOptions controls how a sub-definition is linked to its parent.
type SubOptions struct {
	// SkipAddToParent parents the child without recording it in the
	// canonical sub-definition list. Used for ad hoc dynamic sub-tasks
	// that must not alter the defined tree.
	SkipAddToParent bool
}

// NewDefinition creates a root definition. Roots drive their own subtree, so
// an executable behavior is required.
func NewDefinition(name string, execute ExecuteFunc) (*Definition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidDefinitionf("blank task name")
	}
	if execute == nil {
		return nil, invalidDefinitionf("root definition %q requires an execute function", name)
	}
	return &Definition{name: name, execute: execute}, nil
}

// DefineSub creates a child definition and links it under d. A nil execute
// makes the child externally managed (driven entirely by the parent's
// behavior).
func (d *Definition) DefineSub(name string, execute ExecuteFunc, opts ...SubOptions) (*Definition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidDefinitionf("blank sub-task name under %q", d.name)
	}
	sub := &Definition{name: name, execute: execute}
	var opt SubOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	if err := d.adopt(sub, opt); err != nil {
		return nil, err
	}
	return sub, nil
}

// DefineSubs creates one externally managed child per name, in order. The
// whole batch is rejected if any combination of new and existing sibling
// names is non-distinct.
func (d *Definition) DefineSubs(names ...string) ([]*Definition, error) {
	seen := make(map[string]bool, len(d.subDefs)+len(names))
	for _, sd := range d.subDefs {
		seen[sd.name] = true
	}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, invalidDefinitionf("blank sub-task name under %q", d.name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: sub-task %q under %q", ErrDuplicateName, name, d.name)
		}
		seen[name] = true
	}
	subs := make([]*Definition, 0, len(names))
	for _, name := range names {
		sub, err := d.DefineSub(name, nil)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Adopt links an already-built definition under d. A definition is
// exclusively owned by one parent; re-parenting is rejected.
func (d *Definition) Adopt(sub *Definition) error {
	if sub == nil {
		return invalidDefinitionf("nil sub-definition under %q", d.name)
	}
	if sub.parent != nil {
		return fmt.Errorf("%w: %q is already owned by %q", ErrInvalidParent, sub.name, sub.parent.name)
	}
	return d.adopt(sub, SubOptions{})
}

func (d *Definition) adopt(sub *Definition, opt SubOptions) error {
	for _, existing := range d.subDefs {
		if existing.name == sub.name {
			return fmt.Errorf("%w: sub-task %q under %q", ErrDuplicateName, sub.name, d.name)
		}
	}
	if err := ensureAcyclicDefs(d, sub); err != nil {
		return err
	}
	sub.parent = d
	if !opt.SkipAddToParent {
		d.subDefs = append(d.subDefs, sub)
	}
	return nil
}

// ensureAcyclicDefs walks the tree from the parent's root and rejects the
// link if the proposed subtree shares any node with it. The walk follows
// sub-definition lists only; parent pointers are used solely to find roots.
func ensureAcyclicDefs(parent, proposed *Definition) error {
	seen := make(map[*Definition]bool)
	if err := collectDefs(parent.Root(), seen); err != nil {
		return err
	}
	if seen[proposed] {
		return fmt.Errorf("%w: %q already reachable from root %q", ErrCyclicHierarchy, proposed.name, parent.Root().name)
	}
	for cur := parent; cur != nil; cur = cur.parent {
		if cur == proposed {
			return fmt.Errorf("%w: %q is an ancestor of %q", ErrCyclicHierarchy, proposed.name, parent.name)
		}
	}
	return collectDefs(proposed, seen)
}

func collectDefs(d *Definition, seen map[*Definition]bool) error {
	if seen[d] {
		return fmt.Errorf("%w: %q reachable twice", ErrCyclicHierarchy, d.name)
	}
	seen[d] = true
	for _, sd := range d.subDefs {
		if err := collectDefs(sd, seen); err != nil {
			return err
		}
	}
	return nil
}

func (d *Definition) Name() string        { return d.name }
func (d *Definition) Parent() *Definition { return d.parent }
func (d *Definition) Executable() bool    { return d.execute != nil }
func (d *Definition) Managed() bool       { return d.execute == nil }
func (d *Definition) Execute() ExecuteFunc { return d.execute }

// Unusable reports whether the definition has been retired. Retired
// definitions are kept, never deleted, so historical instances built from
// them remain inspectable.
func (d *Definition) Unusable() bool        { return d.unusable }
func (d *Definition) SetUnusable(flag bool) { d.unusable = flag }

// Root walks parent pointers to the top of the tree.
func (d *Definition) Root() *Definition {
	cur := d
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Sub returns the direct sub-definition with the given name, or nil.
func (d *Definition) Sub(name string) *Definition {
	for _, sd := range d.subDefs {
		if sd.name == name {
			return sd
		}
	}
	return nil
}

// SubDefinitions returns the canonical sub-definition list in insertion
// order. The slice is a copy.
func (d *Definition) SubDefinitions() []*Definition {
	out := make([]*Definition, len(d.subDefs))
	copy(out, d.subDefs)
	return out
}
