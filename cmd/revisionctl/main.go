// Command revisionctl manages a revision store: it applies migrations,
// prints the history of an entity and prunes old revisions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
	"github.com/mickamy/revisionable/config"
	"github.com/mickamy/revisionable/internal/logger"
	"github.com/mickamy/revisionable/migrations"
	"github.com/mickamy/revisionable/notify"
	"github.com/mickamy/revisionable/store/pgstore"
	"github.com/mickamy/revisionable/store/sqlstore"
)

const usage = `usage: revisionctl [-config path] <command> [args]

commands:
  migrate [up|down|version]   apply or roll back the revision table migrations
  history <type> <id>         print the rendered revisions of an entity
  prune <type> <id> <limit>   delete the oldest revisions beyond limit-1
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "revisionctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("revisionctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	asJSON := fs.Bool("json", false, "Print history as JSON")
	fs.Usage = func() { _, _ = fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "migrate":
		return migrate(ctx, cfg, log, rest, out)
	case "history":
		if len(rest) != 2 {
			return errors.New("history needs <type> <id>")
		}
		return withHandler(ctx, cfg, log, func(h *revisionable.Handler) error {
			return history(ctx, h, revisionable.Ref{Type: rest[0], ID: rest[1]}, *asJSON, out)
		})
	case "prune":
		if len(rest) != 3 {
			return errors.New("prune needs <type> <id> <limit>")
		}
		limit, err := strconv.Atoi(rest[2])
		if err != nil || limit <= 0 {
			return fmt.Errorf("invalid limit %q", rest[2])
		}
		return withHandler(ctx, cfg, log, func(h *revisionable.Handler) error {
			n, err := h.Retention().Enforce(ctx, revisionable.Ref{Type: rest[0], ID: rest[1]}, limit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "deleted %d revisions\n", n)
			return err
		})
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func migrate(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string, out io.Writer) error {
	m, done, err := openMigrator(cfg, log)
	if err != nil {
		return err
	}
	defer done()

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	switch direction {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx, 1)
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "version %d (dirty: %t)\n", v, dirty)
		return err
	}
	return fmt.Errorf("unknown migrate direction %q", direction)
}

// openMigrator prepares the embedded migrations for the configured database
// and revision table.
func openMigrator(cfg *config.Config, log *zap.Logger) (*migrations.Migrator, func(), error) {
	db := cfg.Database
	s, err := sqlstore.Open(db.Driver, db.DSN, sqlstore.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	m, err := migrations.NewMigrator(s.DB(), db.Driver, db.Table, log)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return m, func() { _ = s.Close() }, nil
}

// withHandler opens the configured store and broker, builds a handler and
// passes it to fn.
func withHandler(ctx context.Context, cfg *config.Config, log *zap.Logger, fn func(*revisionable.Handler) error) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var opts []revisionable.Option
	dispatcher, closer, err := notify.Open(cfg.Events, log)
	switch {
	case errors.Is(err, notify.ErrNoBroker):
	case err != nil:
		return err
	default:
		defer func() { _ = closer.Close() }()
		opts = append(opts, revisionable.WithDispatcher(dispatcher))
	}

	h, err := revisionable.New(cfg.Handler(log), store, opts...)
	if err != nil {
		return err
	}
	if err := cfg.Register(h); err != nil {
		return err
	}
	return fn(h)
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (revisionable.Store, func(), error) {
	db := cfg.Database
	if db.Migrate {
		m, done, err := openMigrator(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		err = m.Up(ctx)
		done()
		if err != nil {
			return nil, nil, err
		}
	}

	if db.Native && sqlstore.DriverName(db.Driver) == "pgx" {
		pool, err := pgstore.Connect(ctx, db.DSN, pgstore.PoolConfig{})
		if err != nil {
			return nil, nil, err
		}
		s, err := pgstore.New(pool, db.Table, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	}

	s, err := sqlstore.Open(db.Driver, db.DSN, sqlstore.WithTable(db.Table), sqlstore.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func history(ctx context.Context, h *revisionable.Handler, ref revisionable.Ref, asJSON bool, out io.Writer) error {
	lines, err := h.Renderer().HistoryOf(ctx, ref)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(lines)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWHEN\tUSER\tFIELD\tOLD\tNEW")
	for _, l := range lines {
		user := "-"
		if l.Record.UserID != nil {
			user = *l.Record.UserID
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			l.Record.ID,
			l.Record.CreatedAt.Format(revisionable.DefaultTimeLayout),
			user, l.Field, l.OldValue, l.NewValue)
	}
	return w.Flush()
}
