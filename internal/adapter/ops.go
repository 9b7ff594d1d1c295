package adapter

import (
	"github.com/jinjacore/dbtjinja/internal/argparser"
	"github.com/jinjacore/dbtjinja/internal/value"
)

func argString(p *argparser.ArgParser, name string) (string, error) {
	v, err := p.NextArg(name)
	if err != nil {
		return "", err
	}
	s, ok := ValueToString(v)
	if !ok {
		return "", &argparser.Error{Kind: argparser.InvalidArgument, Msg: name + " must be a string"}
	}
	return s, nil
}

func argRelation(p *argparser.ArgParser, name string) (Relation, error) {
	v, err := p.NextArg(name)
	if err != nil {
		return Relation{}, err
	}
	rel, ok := ValueToRelation(v)
	if !ok {
		return Relation{}, &argparser.Error{Kind: argparser.InvalidArgument, Msg: name + " must be a relation"}
	}
	return rel, nil
}

func argBoolOptional(p *argparser.ArgParser, name string, def bool) bool {
	v := p.NextArgOptional(name, value.Bool(def))
	if v.IsBool() {
		return v.AsBool()
	}
	return v.Truthy()
}

func goRowToValue(row []interface{}) value.Value {
	items := make([]value.Value, len(row))
	for i, c := range row {
		items[i] = goScalarToValue(c)
	}
	return value.Obj(value.NewList(items))
}

func goScalarToValue(c interface{}) value.Value {
	switch x := c.(type) {
	case nil:
		return value.None()
	case bool:
		return value.Bool(x)
	case int64:
		return value.Int(x)
	case int:
		return value.Int(int64(x))
	case float64:
		return value.Float(x)
	case string:
		return value.Obj(value.NewString(x))
	case []byte:
		return value.Obj(&value.Bytes{B: x})
	default:
		return value.Undefined()
	}
}

func executeResultValue(res ExecuteResult) value.Value {
	m := value.NewMap()
	m.Set(value.Obj(value.NewString("rows_affected")), value.Int(res.RowsAffected))

	cols := make([]value.Value, len(res.Columns))
	for i, c := range res.Columns {
		cols[i] = value.Obj(value.NewString(c))
	}
	m.Set(value.Obj(value.NewString("columns")), value.Obj(value.NewList(cols)))

	rows := make([]value.Value, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = goRowToValue(r)
	}
	m.Set(value.Obj(value.NewString("rows")), value.Obj(value.NewList(rows)))
	return value.Obj(m)
}

func columnsValue(cols []Column) value.Value {
	items := make([]value.Value, len(cols))
	for i, c := range cols {
		m := value.NewMap()
		m.Set(value.Obj(value.NewString("name")), value.Obj(value.NewString(c.Name)))
		m.Set(value.Obj(value.NewString("dtype")), value.Obj(value.NewString(c.DType)))
		items[i] = value.Obj(m)
	}
	return value.Obj(value.NewList(items))
}

func (b *Bridge) opExecute(conn Connection, p *argparser.ArgParser) (value.Value, error) {
	sql, err := argString(p, "sql")
	if err != nil {
		return value.Undefined(), err
	}
	autoBegin := argBoolOptional(p, "auto_begin", false)
	fetch := argBoolOptional(p, "fetch", false)
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	res, err := b.adapter.Execute(conn, sql, autoBegin, fetch)
	if err != nil {
		return value.Undefined(), err
	}
	return executeResultValue(res), nil
}

func (b *Bridge) opAddQuery(conn Connection, p *argparser.ArgParser) (value.Value, error) {
	sql, err := argString(p, "sql")
	if err != nil {
		return value.Undefined(), err
	}
	autoBegin := argBoolOptional(p, "auto_begin", true)
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	if err := b.adapter.AddQuery(conn, sql, autoBegin); err != nil {
		return value.Undefined(), err
	}
	return value.None(), nil
}

func (b *Bridge) opDropRelation(conn Connection, p *argparser.ArgParser) (value.Value, error) {
	rel, err := argRelation(p, "relation")
	if err != nil {
		return value.Undefined(), err
	}
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	if err := b.adapter.DropRelation(conn, rel); err != nil {
		return value.Undefined(), err
	}
	return value.None(), nil
}

func (b *Bridge) opRenameRelation(conn Connection, p *argparser.ArgParser) (value.Value, error) {
	from, err := argRelation(p, "from_relation")
	if err != nil {
		return value.Undefined(), err
	}
	to, err := argRelation(p, "to_relation")
	if err != nil {
		return value.Undefined(), err
	}
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	if err := b.adapter.RenameRelation(conn, from, to); err != nil {
		return value.Undefined(), err
	}
	return value.None(), nil
}

func (b *Bridge) opGetRelation(conn Connection, p *argparser.ArgParser) (value.Value, error) {
	database, err := argString(p, "database")
	if err != nil {
		return value.Undefined(), err
	}
	schema, err := argString(p, "schema")
	if err != nil {
		return value.Undefined(), err
	}
	identifier, err := argString(p, "identifier")
	if err != nil {
		return value.Undefined(), err
	}
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	rel, found, err := b.adapter.GetRelation(conn, database, schema, identifier)
	if err != nil {
		return value.Undefined(), err
	}
	if !found {
		return value.None(), nil
	}
	return RelationToValue(rel), nil
}

func (b *Bridge) opGetColumnsInRelation(conn Connection, p *argparser.ArgParser) (value.Value, error) {
	rel, err := argRelation(p, "relation")
	if err != nil {
		return value.Undefined(), err
	}
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	cols, err := b.adapter.GetColumnsInRelation(conn, rel)
	if err != nil {
		return value.Undefined(), err
	}
	return columnsValue(cols), nil
}

func (b *Bridge) opGrantAccessTo(conn Connection, p *argparser.ArgParser) (value.Value, error) {
	rel, err := argRelation(p, "relation")
	if err != nil {
		return value.Undefined(), err
	}
	entityType, err := argString(p, "entity_type")
	if err != nil {
		return value.Undefined(), err
	}
	grantee, err := argString(p, "grant_target_dict")
	if err != nil {
		return value.Undefined(), err
	}
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	if err := b.adapter.GrantAccessTo(conn, rel, entityType, grantee); err != nil {
		return value.Undefined(), err
	}
	return value.None(), nil
}
