package query

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/orm/internal/orm/transaction"
)

func setupTestDB(t *testing.T, dialect Dialect) (*Connection, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewConnection(db, dialect), mock
}

func TestSQLBuilder_ToSQL(t *testing.T) {
	conn, _ := setupTestDB(t, DialectPostgres)

	tests := []struct {
		name     string
		build    func() Builder
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "select all",
			build:   func() Builder { return conn.Table("users") },
			wantSQL: `SELECT * FROM "users"`,
		},
		{
			name: "where order limit offset",
			build: func() Builder {
				return conn.Table("users").
					Where("status", OpEqual, "active").
					WhereNull("deleted_at").
					OrderBy("name", "desc").
					ForPage(3, 10)
			},
			wantSQL:  `SELECT * FROM "users" WHERE "status" = $1 AND "deleted_at" IS NULL ORDER BY "name" DESC LIMIT $2 OFFSET $3`,
			wantArgs: []interface{}{"active", 10, 20},
		},
		{
			name: "join with aliased columns",
			build: func() Builder {
				return conn.Table("roles").
					Select("roles.*", "role_user.user_id as pivot_user_id").
					Join("role_user", "role_user.role_id", "=", "roles.id").
					WhereIn("role_user.user_id", []interface{}{1, 2})
			},
			wantSQL:  `SELECT "roles".*, "role_user"."user_id" AS "pivot_user_id" FROM "roles" INNER JOIN "role_user" ON "role_user"."role_id" = "roles"."id" WHERE "role_user"."user_id" IN ($1, $2)`,
			wantArgs: []interface{}{1, 2},
		},
		{
			name: "raw select binds before where",
			build: func() Builder {
				return conn.Table("users").SelectRaw("LENGTH(name) > ? AS long_name", 5).Where("id", OpEqual, 9)
			},
			wantSQL:  `SELECT LENGTH(name) > $1 AS long_name FROM "users" WHERE "id" = $2`,
			wantArgs: []interface{}{5, 9},
		},
		{
			name:     "lock for update",
			build:    func() Builder { return conn.Table("users").Where("id", OpEqual, 1).Lock(LockForUpdate) },
			wantSQL:  `SELECT * FROM "users" WHERE "id" = $1 FOR UPDATE`,
			wantArgs: []interface{}{1},
		},
		{
			name: "grouped or conditions",
			build: func() Builder {
				return conn.Table("invoices").
					Where("total", OpGreaterThan, 10).
					OrWhere("total", OpLessThan, 0).
					GroupWhere().
					Where("tenant_id", OpEqual, 1)
			},
			wantSQL:  `SELECT * FROM "invoices" WHERE ("total" > $1 OR "total" < $2) AND "tenant_id" = $3`,
			wantArgs: []interface{}{10, 0, 1},
		},
		{
			name: "group without or is flat",
			build: func() Builder {
				return conn.Table("users").
					Where("status", OpEqual, "active").
					WhereNull("deleted_at").
					GroupWhere().
					Where("id", OpEqual, 2)
			},
			wantSQL:  `SELECT * FROM "users" WHERE "status" = $1 AND "deleted_at" IS NULL AND "id" = $2`,
			wantArgs: []interface{}{"active", 2},
		},
		{
			name:    "shared lock",
			build:   func() Builder { return conn.Table("users").Lock(LockShared) },
			wantSQL: `SELECT * FROM "users" FOR SHARE`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.build().ToSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestSQLBuilder_SQLiteIgnoresLocks(t *testing.T) {
	conn, _ := setupTestDB(t, DialectSQLite)

	sql, args, err := conn.Table("users").Where("id", OpEqual, 1).Lock(LockForUpdate).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "id" = ?`, sql)
	assert.Equal(t, []interface{}{1}, args)
}

func TestSQLBuilder_InvalidIdentifierDeferred(t *testing.T) {
	conn, _ := setupTestDB(t, DialectPostgres)

	b := conn.Table("users").Where("name; DROP TABLE users", OpEqual, 1)
	require.Error(t, b.Err())

	_, err := b.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column")
}

func TestSQLBuilder_Clone(t *testing.T) {
	conn, _ := setupTestDB(t, DialectPostgres)

	base := conn.Table("users").Where("active", OpEqual, true)
	branch := base.Clone().Where("age", OpGreaterThan, 18).Limit(5)

	baseSQL, _, err := base.ToSQL()
	require.NoError(t, err)
	branchSQL, _, err := branch.ToSQL()
	require.NoError(t, err)

	assert.Equal(t, `SELECT * FROM "users" WHERE "active" = $1`, baseSQL)
	assert.Equal(t, `SELECT * FROM "users" WHERE "active" = $1 AND "age" > $2 LIMIT $3`, branchSQL)
}

func TestSQLBuilder_GetAndFirst(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "active" = $1`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("Ada")).
			AddRow(int64(2), "Grace"))

	rows, err := conn.Table("users").Where("active", OpEqual, true).Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ada", rows[0]["name"])
	assert.Equal(t, int64(2), rows[1]["id"])

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "id" = $1 LIMIT $2`).
		WithArgs(99, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	row, err := conn.Table("users").Where("id", OpEqual, 99).First(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBuilder_CountIgnoresPaging(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)

	mock.ExpectQuery(`SELECT COUNT(*) FROM "posts" WHERE "user_id" = $1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	count, err := conn.Table("posts").Where("user_id", OpEqual, 7).OrderBy("id", "asc").ForPage(2, 5).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBuilder_Pluck(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)

	mock.ExpectQuery(`SELECT "role_user"."role_id" FROM "role_user" WHERE "user_id" = $1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow(int64(1)).AddRow(int64(2)))

	ids, err := conn.Table("role_user").Where("user_id", OpEqual, 1).Pluck(context.Background(), "role_user.role_id")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBuilder_Insert(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO "users" ("email", "name") VALUES ($1, $2), ($3, $4)`).
		WithArgs("a@x.io", "A", nil, "B").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := conn.Table("users").Insert(ctx, Row{"name": "A", "email": "a@x.io"}, Row{"name": "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = conn.Table("users").Insert(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBuilder_InsertGetID(t *testing.T) {
	t.Run("postgres returning", func(t *testing.T) {
		conn, mock := setupTestDB(t, DialectPostgres)
		mock.ExpectQuery(`INSERT INTO "users" ("name") VALUES ($1) RETURNING "id"`).
			WithArgs("Ada").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

		id, err := conn.Table("users").InsertGetID(context.Background(), Row{"name": "Ada"}, "id")
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlite last insert id", func(t *testing.T) {
		conn, mock := setupTestDB(t, DialectSQLite)
		mock.ExpectExec(`INSERT INTO "users" ("name") VALUES (?)`).
			WithArgs("Ada").
			WillReturnResult(sqlmock.NewResult(7, 1))

		id, err := conn.Table("users").InsertGetID(context.Background(), Row{"name": "Ada"}, "id")
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLBuilder_Upsert(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)

	mock.ExpectExec(`INSERT INTO "users" ("email", "name") VALUES ($1, $2) ON CONFLICT ("email") DO UPDATE SET "name" = excluded."name"`).
		WithArgs("a@x.io", "A").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := conn.Table("users").Upsert(context.Background(), []Row{{"email": "a@x.io", "name": "A"}}, []string{"email"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = conn.Table("users").Upsert(context.Background(), []Row{{"email": "a@x.io"}}, nil, nil)
	assert.Error(t, err)
}

func TestSQLBuilder_UpdateAndDelete(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE "users" SET "name" = $1, "version" = $2 WHERE "id" = $3 AND "version" = $4`).
		WithArgs("B", int64(2), 1, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := conn.Table("users").
		Where("id", OpEqual, 1).
		Where("version", OpEqual, int64(1)).
		Update(ctx, Row{"name": "B", "version": int64(2)})
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(`DELETE FROM "users" WHERE "id" IN ($1, $2)`).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err = conn.Table("users").WhereIn("id", []interface{}{1, 2}).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBuilder_ErrorsAreConverted(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)

	mock.ExpectQuery(`SELECT * FROM "users"`).WillReturnError(errors.New("connection reset"))

	_, err := conn.Table("users").Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_TransactionUsesTx(t *testing.T) {
	conn, mock := setupTestDB(t, DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = $1`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := conn.Transaction(context.Background(), func(ctx context.Context) error {
		_, ok := transaction.FromContext(ctx)
		assert.True(t, ok)
		if _, err := conn.Table("users").Where("id", OpEqual, 1).Delete(ctx); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertDBError(t *testing.T) {
	assert.Nil(t, ConvertDBError(nil))
	assert.ErrorIs(t, ConvertDBError(sql.ErrNoRows), ErrNoRows)
	assert.ErrorIs(t, ConvertDBError(sql.ErrNoRows), sql.ErrNoRows)

	plain := errors.New("plain")
	assert.Equal(t, plain, ConvertDBError(plain))
}
