package query

// Visitor is called for each query during a walk.
// Return false to skip the queries nested in the visited one.
type Visitor func(q *Query) bool

// Walk traverses q and every query nested in it, depth first: CTEs, set
// operations, joins, sources, sub-queries in predicates, values and
// select items. Relation targets and callbacks are not expanded.
func Walk(q *Query, visit Visitor) {
	if q == nil || !visit(q) {
		return
	}

	for _, w := range q.With {
		Walk(w.Query, visit)
		if w.Recursive != nil {
			Walk(w.Recursive.Base, visit)
		}
	}
	if q.From != nil {
		Walk(q.From.Query, visit)
	}
	for _, it := range q.Select {
		walkValue(it.Expr, visit)
	}
	for _, j := range q.Join {
		Walk(j.Query, visit)
		walkWhere(j.On, visit)
	}
	walkWhere(q.And, visit)
	for _, group := range q.Or {
		walkWhere(group, visit)
	}
	walkWhere(q.Having, visit)
	for _, u := range q.Union {
		Walk(u.Query, visit)
	}
	if q.Insert != nil {
		Walk(q.Insert.From, visit)
		for _, row := range q.Insert.Rows {
			for _, v := range row {
				walkValue(v, visit)
			}
		}
	}
	for _, s := range q.Update {
		walkValue(s.Value, visit)
	}
	if q.Upsert != nil {
		for _, s := range q.Upsert.Update {
			walkValue(s.Value, visit)
		}
	}
	if q.Copy != nil {
		Walk(q.Copy.Query, visit)
	}
}

func walkValue(v any, visit Visitor) {
	switch x := v.(type) {
	case *Query:
		Walk(x, visit)
	case SetOp:
		walkValue(x.Arg, visit)
	case Fn:
		for _, a := range x.Args {
			walkValue(a, visit)
		}
		walkWhere(x.Filter, visit)
	}
}

func walkWhere(list []Where, visit Visitor) {
	for _, w := range list {
		switch n := w.(type) {
		case Cols:
			for _, v := range n {
				if ops, ok := v.(Ops); ok {
					for _, arg := range ops {
						walkValue(arg, visit)
					}
					continue
				}
				walkValue(v, visit)
			}
		case Not:
			walkWhere(n, visit)
		case Or:
			for _, g := range n {
				walkWhere(g, visit)
			}
		case Group:
			walkWhere(n.And, visit)
			for _, g := range n.Or {
				walkWhere(g, visit)
			}
		case In:
			Walk(n.Query, visit)
		case Exists:
			Walk(n.Query, visit)
			walkWhere(n.On, visit)
		case Compare:
			walkValue(n.Left, visit)
			walkValue(n.Right, visit)
		}
	}
}
