// Package query provides the SQL query builder and connection used by the ORM
package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Row is a single result row keyed by column name
type Row = map[string]interface{}

// Builder is the fluent query surface consumed by the model layer.
// Chain methods mutate the receiver and return it; use Clone to branch.
type Builder interface {
	Table() string
	Select(columns ...string) Builder
	SelectRaw(expr string, args ...interface{}) Builder
	Where(column string, op Operator, value interface{}) Builder
	OrWhere(column string, op Operator, value interface{}) Builder
	WhereIn(column string, values []interface{}) Builder
	WhereNotIn(column string, values []interface{}) Builder
	WhereNull(column string) Builder
	WhereNotNull(column string) Builder
	GroupWhere() Builder
	Join(table, first, op, second string) Builder
	LeftJoin(table, first, op, second string) Builder
	OrderBy(column string, direction string) Builder
	Limit(n int) Builder
	Offset(n int) Builder
	ForPage(page, perPage int) Builder
	Lock(mode LockMode) Builder
	Clone() Builder
	Err() error
	ToSQL() (string, []interface{}, error)

	Get(ctx context.Context) ([]Row, error)
	First(ctx context.Context) (Row, error)
	Count(ctx context.Context) (int64, error)
	Exists(ctx context.Context) (bool, error)
	Pluck(ctx context.Context, column string) ([]interface{}, error)
	Insert(ctx context.Context, rows ...Row) (int64, error)
	InsertGetID(ctx context.Context, row Row, keyColumn string) (interface{}, error)
	Upsert(ctx context.Context, rows []Row, uniqueBy []string, updateColumns []string) (int64, error)
	Update(ctx context.Context, values Row) (int64, error)
	Delete(ctx context.Context) (int64, error)
}

// JoinType represents the type of SQL join
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// String returns the string representation of the join type
func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT"
	default:
		return "INNER"
	}
}

// Join represents a SQL join clause
type Join struct {
	Type   JoinType
	Table  string
	First  string
	Op     string
	Second string
}

type rawSelect struct {
	expr string
	args []interface{}
}

// SQLBuilder implements Builder over a Connection
type SQLBuilder struct {
	conn *Connection

	table      string
	columns    []string
	raw        []rawSelect
	conditions []*Condition
	joins      []*Join
	orderBy    []string
	limit      *int
	offset     *int
	lock       LockMode

	// first error raised while building; reported by the terminal call
	err error
}

// NewSQLBuilder creates a builder for the given table
func NewSQLBuilder(conn *Connection, table string) *SQLBuilder {
	return &SQLBuilder{
		conn:       conn,
		table:      table,
		columns:    make([]string, 0),
		conditions: make([]*Condition, 0),
		joins:      make([]*Join, 0),
		orderBy:    make([]string, 0),
	}
}

func (qb *SQLBuilder) fail(err error) Builder {
	if qb.err == nil {
		qb.err = err
	}
	return qb
}

// Table returns the table the builder targets
func (qb *SQLBuilder) Table() string {
	return qb.table
}

// Err returns the first error recorded while building the query
func (qb *SQLBuilder) Err() error {
	return qb.err
}

// Select sets the selected columns. "posts.*" and "col as alias" are accepted.
func (qb *SQLBuilder) Select(columns ...string) Builder {
	for _, c := range columns {
		head := c
		if idx := strings.Index(strings.ToLower(c), " as "); idx > 0 {
			head = c[:idx]
		}
		if !isValidIdentifier(strings.TrimSpace(head)) {
			return qb.fail(fmt.Errorf("invalid column: %s", c))
		}
	}
	qb.columns = append(qb.columns, columns...)
	return qb
}

// SelectRaw adds a raw select expression with optional bindings
func (qb *SQLBuilder) SelectRaw(expr string, args ...interface{}) Builder {
	qb.raw = append(qb.raw, rawSelect{expr: expr, args: args})
	return qb
}

// Where adds a WHERE condition to the query
func (qb *SQLBuilder) Where(column string, op Operator, value interface{}) Builder {
	return qb.addCondition(column, op, value, false)
}

// OrWhere adds an OR WHERE condition to the query
func (qb *SQLBuilder) OrWhere(column string, op Operator, value interface{}) Builder {
	return qb.addCondition(column, op, value, true)
}

func (qb *SQLBuilder) addCondition(column string, op Operator, value interface{}, or bool) Builder {
	if !isValidIdentifier(column) {
		return qb.fail(fmt.Errorf("invalid column: %s", column))
	}
	qb.conditions = append(qb.conditions, &Condition{
		Column:   column,
		Operator: op,
		Value:    value,
		Or:       or,
	})
	return qb
}

// WhereIn adds a WHERE IN condition
func (qb *SQLBuilder) WhereIn(column string, values []interface{}) Builder {
	return qb.Where(column, OpIn, values)
}

// WhereNotIn adds a WHERE NOT IN condition
func (qb *SQLBuilder) WhereNotIn(column string, values []interface{}) Builder {
	return qb.Where(column, OpNotIn, values)
}

// WhereNull adds a WHERE IS NULL condition
func (qb *SQLBuilder) WhereNull(column string) Builder {
	return qb.Where(column, OpIsNull, nil)
}

// WhereNotNull adds a WHERE IS NOT NULL condition
func (qb *SQLBuilder) WhereNotNull(column string) Builder {
	return qb.Where(column, OpIsNotNull, nil)
}

// GroupWhere parenthesises the conditions added so far when they contain an
// OR, so later conditions apply to the whole group
func (qb *SQLBuilder) GroupWhere() Builder {
	if len(qb.conditions) < 2 {
		return qb
	}
	for _, c := range qb.conditions[1:] {
		if c.Or {
			group := make([]*Condition, len(qb.conditions))
			copy(group, qb.conditions)
			qb.conditions = []*Condition{{Group: group}}
			return qb
		}
	}
	return qb
}

// Join adds an INNER JOIN clause
func (qb *SQLBuilder) Join(table, first, op, second string) Builder {
	return qb.join(InnerJoin, table, first, op, second)
}

// LeftJoin adds a LEFT JOIN clause
func (qb *SQLBuilder) LeftJoin(table, first, op, second string) Builder {
	return qb.join(LeftJoin, table, first, op, second)
}

func (qb *SQLBuilder) join(joinType JoinType, table, first, op, second string) Builder {
	switch op {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
	default:
		return qb.fail(fmt.Errorf("invalid join operator: %s", op))
	}
	for _, ident := range []string{table, first, second} {
		if !isValidIdentifier(ident) {
			return qb.fail(fmt.Errorf("invalid join identifier: %s", ident))
		}
	}
	qb.joins = append(qb.joins, &Join{Type: joinType, Table: table, First: first, Op: op, Second: second})
	return qb
}

// OrderBy adds an ORDER BY clause
func (qb *SQLBuilder) OrderBy(column string, direction string) Builder {
	if !isValidIdentifier(column) {
		return qb.fail(fmt.Errorf("invalid order column: %s", column))
	}
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	qb.orderBy = append(qb.orderBy, fmt.Sprintf("%s %s", quoteIdentifier(column), dir))
	return qb
}

// Limit sets the LIMIT clause
func (qb *SQLBuilder) Limit(n int) Builder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET clause
func (qb *SQLBuilder) Offset(n int) Builder {
	qb.offset = &n
	return qb
}

// ForPage sets LIMIT/OFFSET for a 1-based page number
func (qb *SQLBuilder) ForPage(page, perPage int) Builder {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	qb.Limit(perPage)
	return qb.Offset((page - 1) * perPage)
}

// Lock requests a row-level lock on the selected rows
func (qb *SQLBuilder) Lock(mode LockMode) Builder {
	qb.lock = mode
	return qb
}

// Clone creates a copy of the query builder
func (qb *SQLBuilder) Clone() Builder {
	clone := &SQLBuilder{
		conn:       qb.conn,
		table:      qb.table,
		columns:    make([]string, len(qb.columns)),
		raw:        make([]rawSelect, len(qb.raw)),
		conditions: make([]*Condition, len(qb.conditions)),
		joins:      make([]*Join, len(qb.joins)),
		orderBy:    make([]string, len(qb.orderBy)),
		lock:       qb.lock,
		err:        qb.err,
	}

	copy(clone.columns, qb.columns)
	copy(clone.raw, qb.raw)
	copy(clone.conditions, qb.conditions)
	copy(clone.joins, qb.joins)
	copy(clone.orderBy, qb.orderBy)

	if qb.limit != nil {
		limit := *qb.limit
		clone.limit = &limit
	}

	if qb.offset != nil {
		offset := *qb.offset
		clone.offset = &offset
	}

	return clone
}

// ToSQL generates the SELECT statement and parameter bindings
func (qb *SQLBuilder) ToSQL() (string, []interface{}, error) {
	return qb.selectSQL("")
}

// selectSQL renders a SELECT. A non-empty aggregate replaces the column list
// and drops ordering, paging and locking.
func (qb *SQLBuilder) selectSQL(aggregate string) (string, []interface{}, error) {
	if qb.err != nil {
		return "", nil, qb.err
	}

	w := &argWriter{dialect: qb.conn.dialect}
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if aggregate != "" {
		sb.WriteString(aggregate)
	} else {
		cols := make([]string, 0, len(qb.columns)+len(qb.raw))
		for _, c := range qb.columns {
			cols = append(cols, quoteColumn(c))
		}
		for _, r := range qb.raw {
			expr := r.expr
			for _, a := range r.args {
				expr = strings.Replace(expr, "?", w.bind(a), 1)
			}
			cols = append(cols, expr)
		}
		if len(cols) == 0 {
			cols = append(cols, "*")
		}
		sb.WriteString(strings.Join(cols, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdentifier(qb.table))

	for _, j := range qb.joins {
		sb.WriteString(fmt.Sprintf(" %s JOIN %s ON %s %s %s",
			j.Type, quoteIdentifier(j.Table), quoteIdentifier(j.First), j.Op, quoteIdentifier(j.Second)))
	}

	if err := qb.writeWhere(&sb, w); err != nil {
		return "", nil, err
	}

	if aggregate == "" {
		if len(qb.orderBy) > 0 {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(strings.Join(qb.orderBy, ", "))
		}
		if qb.limit != nil {
			sb.WriteString(" LIMIT " + w.bind(*qb.limit))
		}
		if qb.offset != nil {
			sb.WriteString(" OFFSET " + w.bind(*qb.offset))
		}
		sb.WriteString(qb.conn.dialect.LockClause(qb.lock))
	}

	return sb.String(), w.args, nil
}

func (qb *SQLBuilder) writeWhere(sb *strings.Builder, w *argWriter) error {
	if len(qb.conditions) == 0 {
		return nil
	}
	where, err := conditionsToSQL(qb.conditions, w)
	if err != nil {
		return err
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	return nil
}

// Get executes the query and returns all matching rows
func (qb *SQLBuilder) Get(ctx context.Context) ([]Row, error) {
	sqlStr, args, err := qb.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}
	return qb.conn.query(ctx, sqlStr, args)
}

// First executes the query with LIMIT 1; a nil row means nothing matched
func (qb *SQLBuilder) First(ctx context.Context) (Row, error) {
	rows, err := qb.Clone().Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Count executes the query and returns the count
func (qb *SQLBuilder) Count(ctx context.Context) (int64, error) {
	sqlStr, args, err := qb.selectSQL("COUNT(*)")
	if err != nil {
		return 0, fmt.Errorf("failed to generate SQL: %w", err)
	}

	var count int64
	if err := qb.conn.queryRow(ctx, sqlStr, args, &count); err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	return count, nil
}

// Exists checks if any rows match the query
func (qb *SQLBuilder) Exists(ctx context.Context) (bool, error) {
	count, err := qb.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Pluck returns the values of a single column
func (qb *SQLBuilder) Pluck(ctx context.Context, column string) ([]interface{}, error) {
	clone := qb.Clone().(*SQLBuilder)
	clone.columns = []string{column}
	clone.raw = nil

	rows, err := clone.Get(ctx)
	if err != nil {
		return nil, err
	}

	key := column
	if idx := strings.LastIndex(column, "."); idx >= 0 {
		key = column[idx+1:]
	}
	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, row[key])
	}
	return values, nil
}

// Insert inserts one or more rows. Columns are the union of all row keys.
func (qb *SQLBuilder) Insert(ctx context.Context, rows ...Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sqlStr, args, err := qb.insertSQL(rows)
	if err != nil {
		return 0, err
	}
	res, err := qb.conn.exec(ctx, sqlStr, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertGetID inserts a single row and returns the generated key
func (qb *SQLBuilder) InsertGetID(ctx context.Context, row Row, keyColumn string) (interface{}, error) {
	sqlStr, args, err := qb.insertSQL([]Row{row})
	if err != nil {
		return nil, err
	}

	if qb.conn.dialect.SupportsReturning() {
		var id interface{}
		sqlStr += " RETURNING " + quoteIdentifier(keyColumn)
		if err := qb.conn.queryRow(ctx, sqlStr, args, &id); err != nil {
			return nil, err
		}
		if b, ok := id.([]byte); ok {
			id = string(b)
		}
		return id, nil
	}

	res, err := qb.conn.exec(ctx, sqlStr, args)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read last insert id: %w", err)
	}
	return id, nil
}

// Upsert inserts rows, updating updateColumns when a uniqueBy conflict occurs.
// With no updateColumns every non-unique inserted column is updated.
func (qb *SQLBuilder) Upsert(ctx context.Context, rows []Row, uniqueBy []string, updateColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(uniqueBy) == 0 {
		return 0, fmt.Errorf("upsert requires at least one unique column")
	}

	sqlStr, args, err := qb.insertSQL(rows)
	if err != nil {
		return 0, err
	}

	if len(updateColumns) == 0 {
		unique := make(map[string]bool, len(uniqueBy))
		for _, c := range uniqueBy {
			unique[c] = true
		}
		for _, c := range rowColumns(rows) {
			if !unique[c] {
				updateColumns = append(updateColumns, c)
			}
		}
	}

	conflict := make([]string, len(uniqueBy))
	for i, c := range uniqueBy {
		conflict[i] = quoteIdentifier(c)
	}
	sqlStr += fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(conflict, ", "))

	if len(updateColumns) == 0 {
		sqlStr += " DO NOTHING"
	} else {
		sets := make([]string, len(updateColumns))
		for i, c := range updateColumns {
			q := quoteIdentifier(c)
			sets[i] = fmt.Sprintf("%s = excluded.%s", q, q)
		}
		sqlStr += " DO UPDATE SET " + strings.Join(sets, ", ")
	}

	res, err := qb.conn.exec(ctx, sqlStr, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Update updates matching rows and returns the affected row count
func (qb *SQLBuilder) Update(ctx context.Context, values Row) (int64, error) {
	if qb.err != nil {
		return 0, qb.err
	}
	if len(values) == 0 {
		return 0, nil
	}

	w := &argWriter{dialect: qb.conn.dialect}
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(quoteIdentifier(qb.table))
	sb.WriteString(" SET ")

	cols := sortedKeys(values)
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s = %s", quoteIdentifier(col), w.bind(values[col])))
	}

	if err := qb.writeWhere(&sb, w); err != nil {
		return 0, err
	}

	res, err := qb.conn.exec(ctx, sb.String(), w.args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete deletes matching rows and returns the affected row count
func (qb *SQLBuilder) Delete(ctx context.Context) (int64, error) {
	if qb.err != nil {
		return 0, qb.err
	}

	w := &argWriter{dialect: qb.conn.dialect}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(quoteIdentifier(qb.table))
	if err := qb.writeWhere(&sb, w); err != nil {
		return 0, err
	}

	res, err := qb.conn.exec(ctx, sb.String(), w.args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (qb *SQLBuilder) insertSQL(rows []Row) (string, []interface{}, error) {
	if qb.err != nil {
		return "", nil, qb.err
	}

	cols := rowColumns(rows)
	if len(cols) == 0 {
		if len(rows) > 1 {
			return "", nil, fmt.Errorf("cannot insert multiple rows without columns")
		}
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdentifier(qb.table)), nil, nil
	}

	w := &argWriter{dialect: qb.conn.dialect}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		if !isValidIdentifier(c) {
			return "", nil, fmt.Errorf("invalid column: %s", c)
		}
		quoted[i] = quoteIdentifier(c)
	}

	tuples := make([]string, len(rows))
	for i, row := range rows {
		placeholders := make([]string, len(cols))
		for j, c := range cols {
			placeholders[j] = w.bind(row[c])
		}
		tuples[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdentifier(qb.table), strings.Join(quoted, ", "), strings.Join(tuples, ", ")), w.args, nil
}

// rowColumns returns the sorted union of keys across rows
func rowColumns(rows []Row) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func sortedKeys(m Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scanRows scans SQL rows into a slice of maps
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Row, len(columns))
		for i, col := range columns {
			// Drivers hand text back as []byte
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
