// Package stormsql translates a subset of SQL SELECT statements into Storm queries.
package stormsql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/asdine/storm/v3/q"
	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"
)

// A SelectClause contains all the parsed SQL data.
type SelectClause struct {
	SelectedFields  []string
	Count           bool
	Tablename       string
	Matcher         q.Matcher
	Skip            int
	Limit           int
	OrderBy         []string
	OrderByReversed bool
}

// ParseSelect parses the given SELECT statement.
//
//	SELECT count(*) FROM records WHERE Collection = 'events' AND UpdatedAt > '2024-02-16 20:52:55'
func ParseSelect(sql string) (*SelectClause, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse SQL")
	}

	s, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, errors.New("not a select statement")
	}

	var sc SelectClause

	// SELECT * ...
	// SELECT Collection,UpdatedAt ...
	for _, se := range s.SelectExprs {
		switch v := se.(type) {
		case *sqlparser.StarExpr:
			sc.SelectedFields = []string{}
		case *sqlparser.AliasedExpr:
			switch v := v.Expr.(type) {
			case *sqlparser.ColName:
				sc.SelectedFields = append(sc.SelectedFields, v.Name.String())
			case *sqlparser.FuncExpr:
				if !v.Name.EqualString("count") {
					return nil, errors.Errorf("unsupported function: %s", v.Name)
				}
				sc.SelectedFields = []string{}
				sc.Count = true
			default:
				return nil, errors.Errorf("unsupported select expression: %s", sqlparser.String(v))
			}
		default:
			return nil, errors.New("unsupported select expression")
		}
	}

	// FROM records
	if len(s.From) != 1 {
		return nil, errors.New("only one table is supported")
	}
	table, ok := s.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, errors.New("unsupported table expression")
	}
	sc.Tablename = sqlparser.GetTableName(table.Expr).String()

	// WHERE
	sc.Matcher = q.And()
	if s.Where != nil {
		if sc.Matcher, err = parseWhereExpr(s.Where.Expr); err != nil {
			return nil, err
		}
	}

	// LIMIT 5
	// LIMIT 2,5
	if s.Limit != nil {
		if s.Limit.Offset != nil {
			if sc.Skip, err = parseInt(s.Limit.Offset); err != nil {
				return nil, errors.Wrap(err, "invalid offset")
			}
		}
		if sc.Limit, err = parseInt(s.Limit.Rowcount); err != nil {
			return nil, errors.Wrap(err, "invalid limit")
		}
	}

	// ORDER BY UpdatedAt
	// ORDER BY UpdatedAt DESC
	// ORDER BY UpdatedAt DESC, CreatedAt ASC     => All will be DESC due to strom limitation
	for _, ob := range s.OrderBy {
		col, ok := ob.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, errors.Errorf("unsupported order expression: %s", sqlparser.String(ob.Expr))
		}
		if ob.Direction == sqlparser.DescScr {
			sc.OrderByReversed = true
		}
		sc.OrderBy = append(sc.OrderBy, col.Name.String())
	}

	return &sc, nil
}

func parseWhereExpr(expr sqlparser.Expr) (q.Matcher, error) {
	switch v := expr.(type) {
	//
	//
	//
	case *sqlparser.ComparisonExpr:
		col, ok := v.Left.(*sqlparser.ColName)
		if !ok {
			return nil, errors.Errorf("left operand must be a column: %s", sqlparser.String(v))
		}
		field := col.Name.String()

		value, err := parseValue(v.Right)
		if err != nil {
			return nil, err
		}

		// Parse operator
		switch v.Operator {
		case sqlparser.EqualStr:
			return q.Eq(field, value), nil
		case sqlparser.NotEqualStr:
			return q.Not(q.Eq(field, value)), nil
		case sqlparser.GreaterThanStr:
			return q.Gt(field, value), nil
		case sqlparser.GreaterEqualStr:
			return q.Gte(field, value), nil
		case sqlparser.InStr:
			return q.In(field, value), nil
		case sqlparser.LessThanStr:
			return q.Lt(field, value), nil
		case sqlparser.LessEqualStr:
			return q.Lte(field, value), nil
		case sqlparser.LikeStr:
			return q.Re(field, like(fmt.Sprint(value))), nil
		default:
			return nil, errors.Errorf("unsupported operator: %s", v.Operator)
		}
		//
		//
		//
	case *sqlparser.IsExpr:
		col, ok := v.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, errors.Errorf("unsupported expression: %s", sqlparser.String(v))
		}

		switch v.Operator {
		case sqlparser.IsNullStr:
			return q.Eq(col.Name.String(), nil), nil
		case sqlparser.IsNotNullStr:
			return q.Not(q.Eq(col.Name.String(), nil)), nil
		default:
			return nil, errors.Errorf("unsupported operator: %s", v.Operator)
		}
		//
		//
		//
	case *sqlparser.AndExpr:
		left, err := parseWhereExpr(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := parseWhereExpr(v.Right)
		if err != nil {
			return nil, err
		}
		return q.And(left, right), nil
		//
		//
		//
	case *sqlparser.OrExpr:
		left, err := parseWhereExpr(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := parseWhereExpr(v.Right)
		if err != nil {
			return nil, err
		}
		return q.Or(left, right), nil
		//
		//
		//
	case *sqlparser.ParenExpr:
		return parseWhereExpr(v.Expr)
	default:
		return nil, errors.Errorf("unsupported where expression: %s", sqlparser.String(v))
	}
}

func parseValue(expr sqlparser.Expr) (any, error) {
	switch v := expr.(type) {
	case sqlparser.BoolVal:
		return bool(v), nil
	case *sqlparser.NullVal:
		return nil, nil
	case sqlparser.ValTuple:
		var tuple []any
		for _, e := range v {
			value, err := parseValue(e)
			if err != nil {
				return nil, err
			}
			tuple = append(tuple, value)
		}
		return tuple, nil
	case *sqlparser.SQLVal:
		return parseSQLVal(v)
	default:
		return nil, errors.Errorf("unsupported value: %s", sqlparser.String(v))
	}
}

func parseSQLVal(v *sqlparser.SQLVal) (any, error) {
	switch v.Type {
	case sqlparser.StrVal:
		// Try to convert to time.Time if possible
		if t, err := dateparse.ParseAny(string(v.Val)); err == nil {
			return t.UTC(), nil
		}
		return string(v.Val), nil
	case sqlparser.IntVal:
		return strconv.Atoi(string(v.Val))
	case sqlparser.FloatVal:
		return strconv.ParseFloat(string(v.Val), 64)
	case sqlparser.HexNum:
		return strconv.ParseInt(strings.TrimPrefix(strings.ToLower(string(v.Val)), "0x"), 16, 64)
	case sqlparser.HexVal:
		return v.HexDecode()
	case sqlparser.BitVal:
		return len(v.Val) > 0 && v.Val[0] == '1', nil
	default:
		return nil, errors.Errorf("unsupported value: %s", sqlparser.String(v))
	}
}

func parseInt(expr sqlparser.Expr) (int, error) {
	v, ok := expr.(*sqlparser.SQLVal)
	if !ok || v.Type != sqlparser.IntVal {
		return 0, errors.Errorf("not an integer: %s", sqlparser.String(expr))
	}
	return strconv.Atoi(string(v.Val))
}

// like converts a LIKE pattern to an anchored regexp.
func like(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexpQuote(r))
		}
	}
	b.WriteString("$")
	return b.String()
}

func regexpQuote(r rune) string {
	if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
		return `\` + string(r)
	}
	return string(r)
}
