package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand runs one migrate action ("up", "down", "status",
// "to <version>" or "force <version>") against the database at dbPath and
// reports to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	migrations := MigrationsFS()
	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
	case "to", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: flow-report migrate %s <version>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if action == "to" {
			err = database.MigrateTo(migrations, uint(v))
		} else {
			err = database.MigrateForce(migrations, v)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Now at version %d\n", v)
	case "status":
		return printMigrateStatus(database, out)
	case "help":
		PrintMigrateHelp(out)
		return nil
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return printMigrateStatus(database, out)
}

func printMigrateStatus(database *DB, out io.Writer) error {
	migrations := MigrationsFS()
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest available: %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	switch {
	case dirty:
		fmt.Fprintln(out, "Database is in a dirty state; inspect it and run: flow-report migrate force <version>")
	case version < latest:
		fmt.Fprintf(out, "%d migration(s) outstanding; run: flow-report migrate up\n", latest-version)
	}
	return nil
}

// PrintMigrateHelp writes the migrate usage to out.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: flow-report migrate <action> [-db path]

Actions:
  up                 apply all pending migrations
  down               roll back the most recent migration
  status             show the current and latest versions
  to <version>       migrate up or down to a version
  force <version>    set the version without running migrations (recovery only)
  help               show this help
`)
}
