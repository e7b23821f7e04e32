// Package main is the detectctl admin command: schema migrations, per-user
// statistics and history, and the model catalogue.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/model"
	"detectserver/internal/repository/sqlite"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/stats"

	"github.com/urfave/cli/v2"
)

const (
	flagDB    = "db"
	flagUser  = "user"
	flagLimit = "limit"
	flagType  = "type"
)

func main() {
	cfg := config.Load()

	app := &cli.App{
		Name:  "detectctl",
		Usage: "administer the detection server database and models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagDB,
				Usage: "path to the SQLite database",
				Value: cfg.DatabasePath,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply pending migrations", Action: migrateUpAction},
					{Name: "down", Usage: "roll back the latest migration", Action: migrateDownAction},
					{Name: "status", Usage: "list migrations and whether they are applied", Action: migrateStatusAction},
				},
			},
			{
				Name:  "stats",
				Usage: "show detection statistics of a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagUser, Usage: "username", Required: true},
				},
				Action: statsAction,
			},
			{
				Name:  "history",
				Usage: "list the newest detection records of a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagUser, Usage: "username", Required: true},
					&cli.IntFlag{Name: flagLimit, Usage: "maximum records", Value: dto.DefaultHistoryLimit},
					&cli.StringFlag{Name: flagType, Usage: "image or video"},
				},
				Action: historyAction,
			},
			{
				Name:  "models",
				Usage: "list models available in the models directory",
				Action: func(c *cli.Context) error {
					return modelsAction(c, cfg.Detector)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openDB opens the database without migrating it.
func openDB(c *cli.Context) (*sqlite.DB, error) {
	db, err := sqlite.Open(c.String(flagDB))
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", c.String(flagDB), err)
	}
	return db, nil
}

func migrateUpAction(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	versions, err := db.MigrateUp(c.Context)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(c.App.Writer, "Schema is up to date")
		return nil
	}
	for _, v := range versions {
		fmt.Fprintf(c.App.Writer, "Applied migration %05d\n", v)
	}
	return nil
}

func migrateDownAction(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.MigrateDown(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Rolled back migration %05d\n", version)
	return nil
}

func migrateStatusAction(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	states, err := db.MigrationStatus(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, renderMigrations(states))
	return nil
}

func lookupUser(ctx context.Context, db *sqlite.DB, username string) (*model.User, error) {
	user, err := sqlite.NewUserRepository(db).GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return user, nil
}

func statsAction(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := lookupUser(c.Context, db, c.String(flagUser))
	if err != nil {
		return err
	}
	s, err := stats.NewAggregator(sqlite.NewDetectionRepository(db)).Compute(c.Context, user.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, renderStats(user, s))
	return nil
}

func historyAction(c *cli.Context) error {
	filter := dto.HistoryFilter{Limit: c.Int(flagLimit)}
	if raw := c.String(flagType); raw != "" {
		kind, err := model.ParseMediaKind(raw)
		if err != nil {
			return err
		}
		filter.Kind = kind
	}

	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := lookupUser(c.Context, db, c.String(flagUser))
	if err != nil {
		return err
	}
	records, err := sqlite.NewDetectionRepository(db).ListByUser(c.Context, user.ID, filter)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, renderHistory(records))
	return nil
}

func modelsAction(c *cli.Context, cfg config.Detector) error {
	names, err := ai.ListModels(cfg.ModelsDir, cfg.ModelExt)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, renderModels(names, cfg.DefaultModel))
	return nil
}
