// Package irfile loads query IR from a YAML (or JSON) document of table
// definitions and named queries.
//
//	tables:
//	  users:
//	    primary_key: [id]
//	    columns: [id, name, {name: email, db: email_address}]
//	    relations:
//	      posts: {kind: has_many, table: posts, foreign_key: author_id}
//	queries:
//	  - name: adults
//	    from: users
//	    select: [id, name]
//	    where:
//	      - age: {gte: $min_age}
//	    order: [name, -id]
//
// String values of the form $name are parameters, bound when a query is
// built.
package irfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shipq/pgq/query"
	"github.com/shipq/pgq/relation"
)

var (
	ErrUnknownQuery = errors.New("unknown query")
	ErrUnknownTable = errors.New("unknown table")
	ErrMissingParam = errors.New("missing parameter")
	ErrInvalidKind  = errors.New("invalid query kind")
	ErrInvalidDoc   = errors.New("invalid document")

	errRelationCycle = errors.New("through relations form a cycle")
)

var paramRe = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)$`)

// Document is a parsed IR document.
type Document struct {
	Tables  map[string]Table `yaml:"tables"`
	Queries []QueryDef       `yaml:"queries"`

	// built base queries by table name, relations attached
	bases map[string]*query.Query
}

// Table declares a table's shape and relations.
type Table struct {
	Schema     string                 `yaml:"schema,omitempty"`
	PrimaryKey []string               `yaml:"primary_key,omitempty"`
	Columns    []ColumnDef            `yaml:"columns,omitempty"`
	Relations  map[string]RelationDef `yaml:"relations,omitempty"`
}

// ColumnDef is a column. A plain string is shorthand for {name: ...}.
type ColumnDef struct {
	Name   string `yaml:"name"`
	DB     string `yaml:"db,omitempty"`
	Type   string `yaml:"type,omitempty"`
	Hidden bool   `yaml:"hidden,omitempty"`
}

func (c *ColumnDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain ColumnDef
	return node.Decode((*plain)(c))
}

// RelationDef declares a relation of a table.
type RelationDef struct {
	// Kind is belongs_to, has_one, has_many, habtm or through.
	Kind       string `yaml:"kind"`
	Table      string `yaml:"table,omitempty"`
	ForeignKey string `yaml:"foreign_key,omitempty"`
	PrimaryKey string `yaml:"primary_key,omitempty"`

	JoinTable             string `yaml:"join_table,omitempty"`
	AssociationForeignKey string `yaml:"association_foreign_key,omitempty"`
	AssociationPrimaryKey string `yaml:"association_primary_key,omitempty"`

	// Through names a relation of the same table, Source a relation of
	// Through's target.
	Through string `yaml:"through,omitempty"`
	Source  string `yaml:"source,omitempty"`
}

// QueryDef is a named query.
type QueryDef struct {
	Name string `yaml:"name"`
	// Kind is select (default), insert, update, delete, upsert, truncate or
	// column_info.
	Kind   string   `yaml:"kind,omitempty"`
	From   string   `yaml:"from"`
	As     string   `yaml:"as,omitempty"`
	Select []string `yaml:"select,omitempty"`
	// Include selects relations as JSON.
	Include  []string         `yaml:"include,omitempty"`
	Distinct bool             `yaml:"distinct,omitempty"`
	Where    []map[string]any `yaml:"where,omitempty"`
	Join     []string         `yaml:"join,omitempty"`
	Group    []string         `yaml:"group,omitempty"`
	// Order items are column names, descending when prefixed with "-".
	Order  []string `yaml:"order,omitempty"`
	Limit  *int     `yaml:"limit,omitempty"`
	Offset *int     `yaml:"offset,omitempty"`

	Values     []map[string]any `yaml:"values,omitempty"`
	Set        map[string]any   `yaml:"set,omitempty"`
	Create     map[string]any   `yaml:"create,omitempty"`
	OnConflict *ConflictDef     `yaml:"on_conflict,omitempty"`
	Returning  []string         `yaml:"returning,omitempty"`
	All        bool             `yaml:"all,omitempty"`

	Column  string `yaml:"column,omitempty"`
	Cascade bool   `yaml:"cascade,omitempty"`
}

// ConflictDef is an insert's ON CONFLICT clause.
type ConflictDef struct {
	Columns []string       `yaml:"columns"`
	Ignore  bool           `yaml:"ignore,omitempty"`
	Merge   bool           `yaml:"merge,omitempty"`
	Set     map[string]any `yaml:"set,omitempty"`
}

// Parse decodes a document, rejecting unknown fields, and resolves its
// tables and relations.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if err := doc.resolve(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses a document file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Names lists the queries in document order.
func (d *Document) Names() []string {
	names := make([]string, len(d.Queries))
	for i, q := range d.Queries {
		names[i] = q.Name
	}
	return names
}

// Table returns the base select over a declared table, relations attached.
func (d *Document) Table(name string) (*query.Query, bool) {
	q, ok := d.bases[name]
	return q, ok
}

func (d *Document) resolve() error {
	seen := map[string]bool{}
	for _, q := range d.Queries {
		if q.Name == "" {
			return fmt.Errorf("%w: query without a name", ErrInvalidDoc)
		}
		if seen[q.Name] {
			return fmt.Errorf("%w: duplicate query %q", ErrInvalidDoc, q.Name)
		}
		seen[q.Name] = true
	}

	// Relations capture their target by value, so targets are the bare
	// tables.
	bare := map[string]*query.Query{}
	for name, t := range d.Tables {
		bare[name] = t.base(name)
	}

	rels := map[string]map[string]query.Relation{}
	for _, tname := range sortedKeys(d.Tables) {
		rels[tname] = map[string]query.Relation{}
		t := d.Tables[tname]
		for _, rname := range sortedKeys(t.Relations) {
			def := t.Relations[rname]
			if def.Kind == "through" {
				continue
			}
			rel, err := def.direct(bare)
			if err != nil {
				return fmt.Errorf("table %q relation %q: %w", tname, rname, err)
			}
			rels[tname][rname] = rel
		}
	}

	// through relations may chain, resolve until no progress
	for pending := d.countThrough(); pending > 0; {
		progress := 0
		for _, tname := range sortedKeys(d.Tables) {
			t := d.Tables[tname]
			for _, rname := range sortedKeys(t.Relations) {
				def := t.Relations[rname]
				if def.Kind != "through" || rels[tname][rname] != nil {
					continue
				}
				through, ok := rels[tname][def.Through]
				if !ok {
					if _, declared := t.Relations[def.Through]; !declared {
						return fmt.Errorf("table %q relation %q: unknown through relation %q", tname, rname, def.Through)
					}
					continue
				}
				mid := through.Target().Table
				source, ok := rels[mid][def.Source]
				if !ok {
					if _, declared := d.Tables[mid].Relations[def.Source]; !declared {
						return fmt.Errorf("table %q relation %q: table %q has no relation %q", tname, rname, mid, def.Source)
					}
					continue
				}
				rels[tname][rname] = relation.Through{Through: through, Source: source}
				progress++
			}
		}
		if progress == 0 {
			return errRelationCycle
		}
		pending -= progress
	}

	d.bases = map[string]*query.Query{}
	for tname, q := range bare {
		b := query.Wrap(q)
		for _, rname := range sortedKeys(rels[tname]) {
			b = b.Relation(rname, rels[tname][rname])
		}
		d.bases[tname] = b.Query()
	}
	return nil
}

func (d *Document) countThrough() int {
	n := 0
	for _, t := range d.Tables {
		for _, r := range t.Relations {
			if r.Kind == "through" {
				n++
			}
		}
	}
	return n
}

func (t Table) base(name string) *query.Query {
	var b query.Builder
	if len(t.Columns) == 0 {
		b = query.From(name)
	} else {
		cols := make([]query.Column, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = query.Column{Name: c.Name, DBName: c.DB, Type: c.Type, Hidden: c.Hidden}
		}
		b = query.Define(name, cols...)
	}
	if t.Schema != "" {
		b = b.Schema(t.Schema)
	}
	if len(t.PrimaryKey) > 0 {
		b = b.PrimaryKey(t.PrimaryKey...)
	}
	return b.Query()
}

func (r RelationDef) direct(tables map[string]*query.Query) (query.Relation, error) {
	to, ok := tables[r.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, r.Table)
	}
	switch r.Kind {
	case "belongs_to":
		return relation.BelongsTo{To: to, ForeignKey: r.ForeignKey, PrimaryKey: r.PrimaryKey}, nil
	case "has_one":
		return relation.HasOne{To: to, ForeignKey: r.ForeignKey, PrimaryKey: r.PrimaryKey}, nil
	case "has_many":
		return relation.HasMany{To: to, ForeignKey: r.ForeignKey, PrimaryKey: r.PrimaryKey}, nil
	case "habtm":
		return relation.HasAndBelongsToMany{
			To:                    to,
			JoinTable:             r.JoinTable,
			ForeignKey:            r.ForeignKey,
			AssociationForeignKey: r.AssociationForeignKey,
			PrimaryKey:            r.PrimaryKey,
			AssociationPrimaryKey: r.AssociationPrimaryKey,
		}, nil
	}
	return nil, fmt.Errorf("unknown relation kind %q", r.Kind)
}

// Query builds the named query, binding $name values from params.
func (d *Document) Query(name string, params map[string]any) (*query.Query, error) {
	for _, def := range d.Queries {
		if def.Name == name {
			q, err := d.build(def, binder(params))
			if err != nil {
				return nil, fmt.Errorf("query %q: %w", name, err)
			}
			return q, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, name)
}

// binder resolves $name parameters in decoded values.
type binder map[string]any

func (p binder) value(v any) (any, error) {
	switch v := v.(type) {
	case string:
		m := paramRe.FindStringSubmatch(v)
		if m == nil {
			return v, nil
		}
		got, ok := p[m[1]]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParam, m[1])
		}
		return got, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			r, err := p.value(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func (p binder) row(m map[string]any) (query.Row, error) {
	row := make(query.Row, len(m))
	for k, v := range m {
		r, err := p.value(v)
		if err != nil {
			return nil, err
		}
		row[k] = r
	}
	return row, nil
}

// where converts one where map. Column keys become a Cols node; "not" and
// "or" hold nested where lists.
func (p binder) where(m map[string]any) ([]query.Where, error) {
	cols := query.Cols{}
	var out []query.Where
	for _, key := range sortedKeys(m) {
		switch key {
		case "not":
			nested, err := p.whereList(m[key])
			if err != nil {
				return nil, fmt.Errorf("not: %w", err)
			}
			out = append(out, query.Not(nested))
		case "or":
			groups, ok := m[key].([]any)
			if !ok {
				return nil, fmt.Errorf("or: expected a list of where lists")
			}
			or := make(query.Or, len(groups))
			for i, g := range groups {
				nested, err := p.whereList(g)
				if err != nil {
					return nil, fmt.Errorf("or[%d]: %w", i, err)
				}
				or[i] = nested
			}
			out = append(out, or)
		default:
			cond, err := p.condition(m[key])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			cols[key] = cond
		}
	}
	if len(cols) > 0 {
		out = append([]query.Where{cols}, out...)
	}
	return out, nil
}

func (p binder) whereList(v any) ([]query.Where, error) {
	switch v := v.(type) {
	case map[string]any:
		return p.where(v)
	case []any:
		var out []query.Where
		for _, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected a map, got %T", e)
			}
			w, err := p.where(m)
			if err != nil {
				return nil, err
			}
			out = append(out, w...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a where map or list, got %T", v)
}

func (p binder) condition(v any) (any, error) {
	ops, ok := v.(map[string]any)
	if !ok {
		return p.value(v)
	}
	out := make(query.Ops, len(ops))
	for op, arg := range ops {
		r, err := p.value(arg)
		if err != nil {
			return nil, err
		}
		out[op] = r
	}
	return out, nil
}

func (d *Document) build(def QueryDef, p binder) (*query.Query, error) {
	if def.From == "" {
		return nil, fmt.Errorf("%w: from is required", ErrInvalidDoc)
	}
	base, ok := d.bases[def.From]
	if !ok {
		base = query.From(def.From).Query()
	}
	b := query.Wrap(base)
	if def.As != "" {
		b = b.As(def.As)
	}

	for _, w := range def.Where {
		nodes, err := p.where(w)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		b = b.Where(nodes...)
	}
	for _, j := range def.Join {
		b = b.Join(j)
	}
	if def.All {
		b = b.All()
	}

	switch def.Kind {
	case "", "select":
		return buildSelect(b, def), nil

	case "insert":
		rows := make([]query.Row, len(def.Values))
		for i, v := range def.Values {
			r, err := p.row(v)
			if err != nil {
				return nil, fmt.Errorf("values[%d]: %w", i, err)
			}
			rows[i] = r
		}
		b = b.Insert(rows...)
		if oc := def.OnConflict; oc != nil {
			conflict := query.OnConflict{Columns: oc.Columns, DoNothing: oc.Ignore, Merge: oc.Merge}
			set, err := p.row(oc.Set)
			if err != nil {
				return nil, fmt.Errorf("on_conflict: %w", err)
			}
			conflict.Set = query.Wrap(&query.Query{}).Update(set).Query().Update
			b = b.OnConflict(conflict)
		}

	case "update":
		set, err := p.row(def.Set)
		if err != nil {
			return nil, fmt.Errorf("set: %w", err)
		}
		b = b.Update(set)

	case "delete":
		b = b.Delete()

	case "upsert":
		set, err := p.row(def.Set)
		if err != nil {
			return nil, fmt.Errorf("set: %w", err)
		}
		create, err := p.row(def.Create)
		if err != nil {
			return nil, fmt.Errorf("create: %w", err)
		}
		b = b.Upsert(set, create)

	case "truncate":
		b = b.Truncate(query.TruncateOptions{Cascade: def.Cascade})

	case "column_info":
		b = b.ColumnInfo(def.Column)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, def.Kind)
	}

	if len(def.Returning) > 0 {
		items := make([]any, len(def.Returning))
		for i, r := range def.Returning {
			items[i] = r
		}
		b = b.Returning(items...)
	}
	return b.Query(), nil
}

func buildSelect(b query.Builder, def QueryDef) *query.Query {
	if len(def.Select) > 0 {
		items := make([]any, len(def.Select))
		for i, s := range def.Select {
			items[i] = s
		}
		b = b.Select(items...)
	}
	for _, rel := range def.Include {
		b = b.SelectRelation(rel, nil)
	}
	if def.Distinct {
		b = b.Distinct()
	}
	if len(def.Group) > 0 {
		b = b.Group(def.Group...)
	}
	for _, o := range def.Order {
		if col, desc := strings.CutPrefix(o, "-"); desc {
			b = b.OrderDesc(col)
		} else {
			b = b.Order(o)
		}
	}
	if def.Limit != nil {
		b = b.Limit(*def.Limit)
	}
	if def.Offset != nil {
		b = b.Offset(*def.Offset)
	}
	return b.Query()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
