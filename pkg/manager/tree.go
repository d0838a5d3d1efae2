package manager

import (
	"fmt"
	"sort"
	"strings"
)

// ParentName is the navigation token that ascends one level. Resolving it at
// the root returns the root itself.
const ParentName = ".."

// EntryKind discriminates resolved tree entries.
type EntryKind int

const (
	EntryGroup EntryKind = iota
	EntryRecord
)

// Entry is a single child of a tree node: either a subgroup or a record.
type Entry struct {
	Kind   EntryKind
	Group  *Node
	Record ConnectionRecord
}

// Node is one group in the derived tree. The zero value is not usable;
// nodes are created by Tree.
type Node struct {
	name    string
	parent  *Node
	groups  map[string]*Node
	records []ConnectionRecord
}

// Tree is the in-memory group hierarchy derived from record group paths.
// It is rebuilt from the full record set after every store mutation. Group
// nodes, once seen, survive rebuilds even when their last record is gone:
// an emptied group stays navigable until the process exits. Nothing about
// the tree is persisted.
type Tree struct {
	root  *Node
	nodes map[string]*Node
}

// NewTree returns an empty tree with only the root node.
func NewTree() *Tree {
	root := &Node{groups: map[string]*Node{}}
	return &Tree{
		root:  root,
		nodes: map[string]*Node{"": root},
	}
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Rebuild re-derives the tree from records. Known group nodes are kept,
// record attachments are replaced. Records appear under their group in the
// order given (the store hands them over in insertion order).
func (t *Tree) Rebuild(records []ConnectionRecord) {
	for _, n := range t.nodes {
		n.records = nil
	}
	for _, rec := range records {
		n := t.ensure(rec.GroupPath)
		n.records = append(n.records, rec)
	}
}

// ensure returns the node for the group path, creating the chain of
// ancestors as needed.
func (t *Tree) ensure(groupPath []string) *Node {
	n := t.root
	for i, seg := range groupPath {
		child, ok := n.groups[seg]
		if !ok {
			child = &Node{name: seg, parent: n, groups: map[string]*Node{}}
			n.groups[seg] = child
			t.nodes[JoinGroupPath(groupPath[:i+1])] = child
		}
		n = child
	}
	return n
}

// Lookup returns the group node at the given path, if present.
func (t *Tree) Lookup(groupPath []string) (*Node, bool) {
	n, ok := t.nodes[JoinGroupPath(normalizeGroupPath(groupPath))]
	return n, ok
}

// Resolve interprets a single name relative to from. ".." ascends (the root
// resolves to itself), a subgroup name descends, a record name yields the
// record. When a subgroup and a record share a name the subgroup wins.
func (t *Tree) Resolve(from *Node, name string) (Entry, error) {
	if from == nil {
		from = t.root
	}
	name = strings.TrimSpace(name)
	if name == ParentName {
		if from.parent == nil {
			return Entry{Kind: EntryGroup, Group: from}, nil
		}
		return Entry{Kind: EntryGroup, Group: from.parent}, nil
	}
	if child, ok := from.groups[name]; ok {
		return Entry{Kind: EntryGroup, Group: child}, nil
	}
	for _, rec := range from.records {
		if rec.Name == name {
			return Entry{Kind: EntryRecord, Record: rec}, nil
		}
	}
	return Entry{}, fmt.Errorf("resolve %q under %q: %w", name, from.Path(), ErrNotFound)
}

// ResolvePath walks segments from the root. Intermediate segments must be
// groups (or ".."); the final segment may be a group or a record.
func (t *Tree) ResolvePath(segments []string) (Entry, error) {
	cur := Entry{Kind: EntryGroup, Group: t.root}
	for i, seg := range segments {
		if cur.Kind != EntryGroup {
			return Entry{}, fmt.Errorf("resolve path: %q is a record, not a group: %w",
				JoinGroupPath(segments[:i]), ErrNotFound)
		}
		next, err := t.Resolve(cur.Group, seg)
		if err != nil {
			return Entry{}, err
		}
		cur = next
	}
	return cur, nil
}

// Name returns the node's own segment; empty for the root.
func (n *Node) Name() string { return n.name }

// IsRoot reports whether the node is the tree root.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Parent returns the parent node; the root returns itself.
func (n *Node) Parent() *Node {
	if n.parent == nil {
		return n
	}
	return n.parent
}

// PathSegments returns the group path from the root to this node.
func (n *Node) PathSegments() []string {
	if n.parent == nil {
		return nil
	}
	return append(n.parent.PathSegments(), n.name)
}

// Path returns the slash-joined group path; empty for the root.
func (n *Node) Path() string { return JoinGroupPath(n.PathSegments()) }

// Subgroups returns child group nodes sorted by name.
func (n *Node) Subgroups() []*Node {
	out := make([]*Node, 0, len(n.groups))
	for _, child := range n.groups {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Records returns the records attached directly to this node, in store
// insertion order.
func (n *Node) Records() []ConnectionRecord {
	out := make([]ConnectionRecord, len(n.records))
	copy(out, n.records)
	return out
}

// Children returns subgroups (sorted by name) followed by records (insertion
// order), the listing contract used by every presentation of a group.
func (n *Node) Children() []Entry {
	subs := n.Subgroups()
	out := make([]Entry, 0, len(subs)+len(n.records))
	for _, g := range subs {
		out = append(out, Entry{Kind: EntryGroup, Group: g})
	}
	for _, rec := range n.records {
		out = append(out, Entry{Kind: EntryRecord, Record: rec})
	}
	return out
}
