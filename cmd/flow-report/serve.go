package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/flow.report/internal/api"
	"github.com/banshee-data/flow.report/internal/db"
	"github.com/banshee-data/flow.report/internal/units"
)

const shutdownTimeout = 5 * time.Second

// newHTTPServer mounts the API and the admin routes of database.
func newHTTPServer(database *db.DB, listen, unit string) (*http.Server, error) {
	if !units.IsValid(unit) {
		return nil, fmt.Errorf("invalid units %q (want %s)", unit, units.GetValidUnitsString())
	}
	s := api.NewServer(database, unit)
	mux := s.ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              listen,
		Handler:           s.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func runServe(ctx context.Context, args []string, _ io.Writer) error {
	fs := newFlagSet("serve")
	dbPath := fs.String("db", "flow.db", "SQLite database")
	listen := fs.String("listen", ":8080", "Listen address")
	unit := fs.String("units", units.MPY, "Default speed units: "+units.GetValidUnitsString())
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	server, err := newHTTPServer(database, *listen, *unit)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

func runMigrate(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("migrate")
	dbPath := fs.String("db", "flow.db", "SQLite database")
	fs.Usage = func() { db.PrintMigrateHelp(fs.Output()) }

	// Accept the action before or after the flags.
	var action []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action = append(action, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(append(action, fs.Args()...), *dbPath, stdout)
}
