package migrate

import (
	"context"
	"errors"
	"io/fs"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var testMigrations = fstest.MapFS{
	"0001_a.up.sql":   {Data: []byte("create table a (id int);\n")},
	"0001_a.down.sql": {Data: []byte("drop table a;\n")},
	"0002_b.up.sql":   {Data: []byte("create table b (id int);\n-- index; for lookups\ncreate index b_idx on b (id);\n")},
	"0002_b.down.sql": {Data: []byte("drop table b;\n")},
	"README.md":       {Data: []byte("not sql")},
}

func expectEnsureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (id int);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create index b_idx on b (id);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0002_b.up.sql", now).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr := NewManager(db, testMigrations, WithClock(func() time.Time { return now }))
	applied, err := mgr.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_b.up.sql" {
		t.Fatalf("unexpected applied set: %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := NewManager(db, testMigrations).Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0001_a.up.sql") {
		t.Fatalf("expected error naming the migration, got %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("nothing should be reported as applied: %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql").AddRow("0002_b.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations").WithArgs("0002_b.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := NewManager(db, testMigrations).Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if name != "0002_b.up.sql" {
		t.Fatalf("rolled back %q", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := NewManager(db, testMigrations).Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	src := "-- leading; comment\nselect 'a;b', 'it''s';\n" +
		"create function f() returns trigger as $body$ begin perform 1; return new; end; $body$ language plpgsql;\n" +
		"select $1::int;\n-- trailing comment\n"
	got := splitStatements(src)
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if !strings.Contains(got[0], "'it''s'") {
		t.Fatalf("quoted string split: %q", got[0])
	}
	if !strings.HasSuffix(got[1], "language plpgsql;") {
		t.Fatalf("dollar-quoted body split: %q", got[1])
	}
	if got[2] != "select $1::int;" {
		t.Fatalf("unexpected third statement: %q", got[2])
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	fsys := Migrations()
	files, err := collectSQL(fsys, ".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 || files[0].Base != "0001_init.up.sql" {
		t.Fatalf("unexpected embedded migrations: %+v", files)
	}
	for _, f := range files {
		down := strings.TrimSuffix(f.Base, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(fsys, down); err != nil {
			t.Fatalf("%s has no down migration", f.Base)
		}
	}

	raw, err := fs.ReadFile(fsys, "0001_init.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	stmts := splitStatements(string(raw))
	if len(stmts) != 7 {
		t.Fatalf("expected 7 statements in initial schema, got %d", len(stmts))
	}
	var trigger bool
	for _, s := range stmts {
		if strings.Contains(s, "raise exception") && strings.HasSuffix(s, "language plpgsql;") {
			trigger = true
		}
	}
	if !trigger {
		t.Fatalf("trigger function was split apart")
	}
}
