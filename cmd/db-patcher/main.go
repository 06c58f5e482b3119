// Command db-patcher prints the SQL that applies or reverts schema patches
// while keeping the patch tracking table in step.
//
// It runs inside a release directory on the database control host and its
// output is piped into the database client:
//
//	bin/db-patcher -dialect mysql -table db_patches update shop 1710072000 \
//	    sql_19700101_080000 sql_updates/sql_20240310_120000.sql | mysql shop
//
// Patch files are read relative to the working directory. The bootstrap
// patch is named by its identifier and is generated instead of read.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/pkg/migrations"
	"github.com/getpup/pupdeploy/protocol"
)

func main() {
	os.Exit(run(os.Args[1:], os.DirFS("."), os.Stdout, os.Stderr))
}

func run(args []string, root fs.FS, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("db-patcher", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		dialect  = flags.String("dialect", string(pupdeploy.DialectMySQL), "Database dialect: mysql, postgres, or sqlite3")
		table    = flags.String("table", migrations.DefaultTable, "Name of the patch tracking table")
		timezone = flags.String("tz", "", "Time zone of patch file names (default: local)")
	)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: db-patcher [flags] update|rollback <database> <timestamp> <patch>...")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return 2
	}

	if err := emit(flags.Args(), pupdeploy.Dialect(*dialect), *table, *timezone, root, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func emit(args []string, dialect pupdeploy.Dialect, table, timezone string, root fs.FS, stdout io.Writer) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: expected an action, a database and a timestamp", pupdeploy.ErrConfiguration)
	}

	action := pupdeploy.Action(args[0])
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", pupdeploy.ErrConfiguration, args[0])
	}
	if args[1] == "" {
		return fmt.Errorf("%w: which database?", pupdeploy.ErrConfiguration)
	}
	unix, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp %q is not a unix time", pupdeploy.ErrConfiguration, args[2])
	}

	loc := time.Local
	if timezone != "" {
		if loc, err = time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("%w: %v", pupdeploy.ErrConfiguration, err)
		}
	}

	emitter, err := protocol.NewEmitter(dialect, table)
	if err != nil {
		return err
	}

	repo := patch.NewRepository(patch.Config{FS: root, Location: loc})
	patches := make([]patch.Patch, 0, len(args)-3)
	for _, name := range args[3:] {
		var p patch.Patch
		if name == patch.BootstrapName {
			p, err = patch.Bootstrap(dialect, emitter.Table, loc)
		} else {
			p, err = repo.Load(name)
		}
		if err != nil {
			return err
		}
		patches = append(patches, p)
	}

	script, err := emitter.Script(action, patches, time.Unix(unix, 0))
	if err != nil {
		return err
	}

	_, err = io.WriteString(stdout, script)
	return err
}
