package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/datasource/localsource"
	"github.com/openshift/culprit/pkg/db"
	"github.com/openshift/culprit/pkg/flags"
)

type SeedFlags struct {
	DBFlags      *flags.DatabaseFlags
	InitDatabase bool
	Fixture      string
}

func NewSeedFlags() *SeedFlags {
	return &SeedFlags{
		DBFlags: flags.NewDatabaseFlags(),
	}
}

func (f *SeedFlags) BindFlags(fs *pflag.FlagSet) {
	f.DBFlags.BindFlags(fs)
	fs.BoolVar(&f.InitDatabase, "init-database", false, "Initialize the DB schema before seeding data")
	fs.StringVar(&f.Fixture, "fixture", f.Fixture, "YAML fixture of pushes and tasks to load")
}

func NewSeedCommand() *cobra.Command {
	f := NewSeedFlags()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load pushes from a fixture into the database",
		Long: `Load the pushes and tasks of a YAML fixture into the database, for
development and for deployments that mirror CI results into SQL.
Pushes that already exist are replaced. Classifications listed in the
fixture are applied to the stored tasks.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Fixture == "" {
				return errors.New("--fixture is required")
			}
			src, err := localsource.Load(f.Fixture)
			if err != nil {
				return errors.WithMessage(err, "could not load fixture")
			}

			dbc, err := f.DBFlags.GetDBClient()
			if err != nil {
				return errors.WithMessage(err, "could not connect to database")
			}
			defer dbc.Close()

			ctx := context.Background()
			if f.InitDatabase {
				if err := dbc.UpdateSchema(ctx); err != nil {
					return errors.WithMessage(err, "could not migrate db")
				}
			}

			return seed(ctx, dbc, src)
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func seed(ctx context.Context, dbc *db.DB, src *localsource.Source) error {
	pushes := src.Pushes()
	for _, p := range pushes {
		tasks := make([]v1.Task, 0, len(p.Tasks))
		for _, t := range p.Tasks {
			if c, ok := p.Classifications[t.ID]; ok {
				t.Classification = c.Classification
				t.ClassificationNote = c.Note
			}
			tasks = append(tasks, t)
		}
		if err := dbc.StorePush(ctx, p.PushInfo, tasks); err != nil {
			return errors.WithMessagef(err, "could not store push %d", p.ID)
		}
		log.WithFields(log.Fields{"push": p.ID, "branch": p.Branch, "tasks": len(tasks)}).Debug("stored push")
	}
	log.Infof("seeded %d pushes", len(pushes))
	return nil
}

func NewMigrateCommand() *cobra.Command {
	f := flags.NewDatabaseFlags()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates or initializes the database to the latest schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbc, err := f.GetDBClient()
			if err != nil {
				return errors.WithMessage(err, "could not connect to db")
			}
			defer dbc.Close()

			if err := dbc.UpdateSchema(context.Background()); err != nil {
				return errors.WithMessage(err, "could not migrate db")
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
