package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupdeploy/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, dialect pupdeploy.Dialect, runner remote.Runner) *Store {
	t.Helper()
	s, err := New(Config{
		Dialect:      dialect,
		ControlHost:  "db-control",
		DatabaseHost: "db.internal",
		Credentials:  store.Credentials{Database: "shop", User: "deploy", Password: "s3cret"},
		Runner:       runner,
		Location:     time.UTC,
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	return s
}

func respond(lines ...string) func(context.Context, remote.Command) (remote.Result, error) {
	return func(ctx context.Context, cmd remote.Command) (remote.Result, error) {
		return remote.Result{Output: lines}, nil
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Dialect: pupdeploy.DialectMySQL, ControlHost: "db"})
	assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)

	_, err = New(Config{Dialect: pupdeploy.DialectMySQL, Runner: remote.NewMockRunner()})
	assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)

	_, err = New(Config{Dialect: "oracle", ControlHost: "db", Runner: remote.NewMockRunner()})
	assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)
}

func TestClientCommand(t *testing.T) {
	runner := remote.NewMockRunner()

	mysql := newStore(t, pupdeploy.DialectMySQL, runner).ClientCommand()
	assert.Equal(t, "MYSQL_PWD=s3cret mysql -h db.internal -u deploy -N -B shop", mysql)

	pg := newStore(t, pupdeploy.DialectPostgres, runner).ClientCommand()
	assert.Equal(t, `PGPASSWORD=s3cret psql -X -q -A -t -F "$(printf '\t')" -v ON_ERROR_STOP=1 -h db.internal -U deploy -d shop`, pg)

	sqlite := newStore(t, pupdeploy.DialectSQLite, runner).ClientCommand()
	assert.Equal(t, `sqlite3 -bail -batch -separator "$(printf '\t')" shop`, sqlite)

	for _, cmd := range []string{mysql, pg} {
		assert.NotContains(t, remote.Redact(cmd), "s3cret")
	}
}

func TestTableExists(t *testing.T) {
	runner := remote.NewMockRunner()
	s := newStore(t, pupdeploy.DialectMySQL, runner)

	runner.RunFunc = respond("db_patches")
	exists, err := s.TableExists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)

	runner.RunFunc = respond()
	exists, err = s.TableExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, pupdeploy.Host("db-control"), calls[0].Host)
	assert.Contains(t, calls[0].Stdin, "SHOW TABLES LIKE 'db_patches'")
	assert.NotContains(t, calls[0].Script, "SHOW TABLES", "SQL goes through stdin")
}

func TestRecords(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.RunFunc = respond(
		"mysql: [Warning] something noisy",
		"sql/sql_20240101_120000.sql\t1704110400\t1704200000\tNULL",
		"sql/sql_20240102_120000.sql\t1704196800\tNULL\tNULL",
	)
	s := newStore(t, pupdeploy.DialectMySQL, runner)

	records, err := s.Records(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sql/sql_20240101_120000.sql", records[0].Name)
	require.NotNil(t, records[0].AppliedAt)
	assert.Nil(t, records[1].AppliedAt)
}

func TestRecords_TableMissing(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.RunFunc = func(ctx context.Context, cmd remote.Command) (remote.Result, error) {
		if strings.Contains(cmd.Stdin, "SHOW TABLES") {
			return remote.Result{}, nil
		}
		return remote.Result{ExitCode: 1}, &pupdeploy.RemoteCommandError{Host: "db-control", ExitCode: 1}
	}
	s := newStore(t, pupdeploy.DialectMySQL, runner)

	_, err := s.Records(context.Background())

	assert.ErrorIs(t, err, store.ErrTableMissing)
}

func TestAppliedBetween_Query(t *testing.T) {
	runner := remote.NewMockRunner()
	s := newStore(t, pupdeploy.DialectMySQL, runner)

	_, err := s.AppliedBetween(context.Background(), time.Unix(100, 0), time.Unix(200, 0))

	require.NoError(t, err)
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Stdin, "applied_at > FROM_UNIXTIME(100) AND applied_at <= FROM_UNIXTIME(200)")
}

func TestApply(t *testing.T) {
	runner := remote.NewMockRunner()
	s := newStore(t, pupdeploy.DialectMySQL, runner)
	bootstrap, err := patch.Bootstrap(pupdeploy.DialectMySQL, "db_patches", time.UTC)
	require.NoError(t, err)
	p1, err := patch.New("sql/sql_20240101_120000.sql", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), "SELECT 1;", "")
	require.NoError(t, err)

	err = s.Apply(context.Background(), store.ApplyRequest{
		Action:     pupdeploy.ActionUpdate,
		Patches:    []patch.Patch{bootstrap, p1},
		At:         time.Unix(1704200000, 0),
		ReleaseDir: "/var/www/shop_2024-01-02_130000",
	})

	require.NoError(t, err)
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, pupdeploy.Host("db-control"), calls[0].Host)
	assert.Equal(t,
		`cd /var/www/shop_2024-01-02_130000 && f=$(mktemp) && bin/db-patcher -dialect mysql -table db_patches -tz UTC update shop 1704200000 sql_19700101_080000 sql/sql_20240101_120000.sql > "$f" && `+
			`MYSQL_PWD=s3cret mysql -h db.internal -u deploy -N -B shop < "$f"; rc=$?; rm -f "$f"; exit $rc`,
		calls[0].Script)
}

func TestApply_RequiresReleaseDir(t *testing.T) {
	s := newStore(t, pupdeploy.DialectMySQL, remote.NewMockRunner())
	p1, err := patch.New("sql/sql_20240101_120000.sql", time.Now(), "", "")
	require.NoError(t, err)

	err = s.Apply(context.Background(), store.ApplyRequest{Action: pupdeploy.ActionRollback, Patches: []patch.Patch{p1}})

	assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)
	assert.NoError(t, s.Apply(context.Background(), store.ApplyRequest{Action: pupdeploy.ActionRollback}))
}

func TestRegister(t *testing.T) {
	runner := remote.NewMockRunner()
	s := newStore(t, pupdeploy.DialectMySQL, runner)
	p1, err := patch.New("sql/sql_20240101_120000.sql", time.Unix(1704110400, 0), "", "")
	require.NoError(t, err)

	require.NoError(t, s.Register(context.Background(), []patch.Patch{p1}))
	require.NoError(t, s.Register(context.Background(), nil))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Stdin, "('sql/sql_20240101_120000.sql', 1704110400, FROM_UNIXTIME(1704110400))")
}

func TestCheckAccess(t *testing.T) {
	runner := remote.NewMockRunner()
	s := newStore(t, pupdeploy.DialectMySQL, runner)

	require.NoError(t, s.CheckAccess(context.Background()))
	assert.Equal(t, "CREATE TABLE temp_1700000000 (id INTEGER);\nDROP TABLE temp_1700000000;\n", runner.Calls()[0].Stdin)

	runner.RunFunc = func(ctx context.Context, cmd remote.Command) (remote.Result, error) {
		return remote.Result{ExitCode: 1}, &pupdeploy.RemoteCommandError{Host: "db-control", ExitCode: 1}
	}
	assert.ErrorIs(t, s.CheckAccess(context.Background()), store.ErrAccessDenied)
}

func TestWithCredentials(t *testing.T) {
	s := newStore(t, pupdeploy.DialectMySQL, remote.NewMockRunner())

	other := s.WithCredentials(store.Credentials{Database: "other", User: "root"})

	assert.Contains(t, other.ClientCommand(), "-u root -N -B other")
	assert.Contains(t, s.ClientCommand(), "-u deploy")
}
