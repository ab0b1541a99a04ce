package obj

// ObjUnit is a translation unit in link order.
type ObjUnit struct {
	Name string
	// Autogenerated units were inferred by analysis and may be renamed.
	Autogenerated bool
	// CommentVersion is the MW .comment section version, 0 if unknown.
	CommentVersion uint8
}

type UnitID uint32

// unitTable interns unit names. Splits store a UnitID, so renaming a unit
// everywhere is a single alias update instead of a walk over every section.
type unitTable struct {
	names  []string
	parent []UnitID
	byName map[string]UnitID
}

func newUnitTable() *unitTable {
	return &unitTable{byName: make(map[string]UnitID)}
}

func (t *unitTable) lookup(name string) (UnitID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

func (t *unitTable) intern(name string) UnitID {
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := UnitID(len(t.names))
	t.names = append(t.names, name)
	t.parent = append(t.parent, id)
	t.byName[name] = id
	return id
}

func (t *unitTable) resolve(id UnitID) UnitID {
	root := id
	for t.parent[root] != root {
		root = t.parent[root]
	}
	for t.parent[id] != root {
		next := t.parent[id]
		t.parent[id] = root
		id = next
	}
	return root
}

func (t *unitTable) name(id UnitID) string {
	return t.names[t.resolve(id)]
}

// alias makes every split owned by from resolve to to. The old name is
// released; interning it again yields a fresh unit.
func (t *unitTable) alias(from, to UnitID) {
	from, to = t.resolve(from), t.resolve(to)
	if from == to {
		return
	}
	t.parent[from] = to
	if id, ok := t.byName[t.names[from]]; ok && t.resolve(id) == to {
		delete(t.byName, t.names[from])
	}
}
