package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/bigquery/bqlabel"
	"github.com/openshift/culprit/pkg/culpritclient"
	"github.com/openshift/culprit/pkg/metrics"
	"github.com/openshift/culprit/pkg/regression"
)

type RegressionsFlags struct {
	EnvFlags *EnvFlags
	Branch   string
	Output   string
	Server   string
	Timeout  time.Duration
}

func NewRegressionsFlags() *RegressionsFlags {
	return &RegressionsFlags{
		EnvFlags: NewEnvFlags(),
		Branch:   "autoland",
		Output:   "text",
		Timeout:  10 * time.Minute,
	}
}

func (f *RegressionsFlags) BindFlags(fs *pflag.FlagSet) {
	f.EnvFlags.BindFlags(fs)
	fs.StringVar(&f.Branch, "branch", f.Branch, "Branch the revision was pushed to")
	fs.StringVarP(&f.Output, "output", "o", f.Output, "Output format: {text,json}")
	fs.StringVar(&f.Server, "server", f.Server, "Ask a culprit server instead of the data sources")
	fs.DurationVar(&f.Timeout, "timeout", f.Timeout, "Give up after this long")
}

func NewRegressionsCommand() *cobra.Command {
	f := NewRegressionsFlags()

	cmd := &cobra.Command{
		Use:   "regressions REV",
		Short: "Classify the regressions of a push as likely or possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer metrics.PushToGateway()
			ctx, cancel := context.WithTimeout(context.Background(), f.Timeout)
			defer cancel()

			if f.Server != "" {
				report, err := f.client().Regressions(ctx, f.query(cmd, args[0]))
				if err != nil {
					return errors.WithMessage(err, "couldn't get report from server")
				}
				return writeReport(os.Stdout, f.Output, report)
			}

			env, err := f.EnvFlags.GetEnv(ctx, cmd.Name(), bqlabel.EnvCli)
			if err != nil {
				return err
			}
			kind, _ := f.EnvFlags.AnalysisFlags.RunnableKind()

			p, err := env.Registry(f.EnvFlags.AnalysisFlags.ForceRefresh).Get(ctx, f.Branch, args[0])
			if err != nil {
				return errors.WithMessagef(err, "couldn't find %s on %s", args[0], f.Branch)
			}
			log.WithFields(log.Fields{"push": p, "kind": kind, "maxDepth": env.Config.MaxDepth}).Info("classifying push")

			report, err := regression.NewClassifier(env.Config.MaxDepth).Analyze(ctx, p, kind, env.Config.Concurrency)
			if err != nil {
				return errors.WithMessage(err, "couldn't classify push")
			}
			return writeReport(os.Stdout, f.Output, report)
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func (f *RegressionsFlags) client() *culpritclient.Client {
	return culpritclient.New(culpritclient.WithServerURL(f.Server), culpritclient.WithToken(os.Getenv("CULPRIT_TOKEN")))
}

// query forwards the analysis flags that were set on the command line.
func (f *RegressionsFlags) query(cmd *cobra.Command, rev string) culpritclient.Query {
	q := culpritclient.Query{Branch: f.Branch, Rev: rev, ForceRefresh: f.EnvFlags.AnalysisFlags.ForceRefresh}
	if kind, err := f.EnvFlags.AnalysisFlags.RunnableKind(); err == nil {
		q.Kind = kind
	}
	if cmd.Flags().Changed("max-depth") {
		q.MaxDepth = f.EnvFlags.AnalysisFlags.MaxDepth
	}
	return q
}

func (f *RegressionsFlags) candidates(ctx context.Context, cmd *cobra.Command, rev string) ([]v1.Runnable, error) {
	if f.Server != "" {
		cands, err := f.client().Candidates(ctx, f.query(cmd, rev))
		return cands, errors.WithMessage(err, "couldn't get candidates from server")
	}

	env, err := f.EnvFlags.GetEnv(ctx, cmd.Name(), bqlabel.EnvCli)
	if err != nil {
		return nil, err
	}
	kind, _ := f.EnvFlags.AnalysisFlags.RunnableKind()

	p, err := env.Registry(f.EnvFlags.AnalysisFlags.ForceRefresh).Get(ctx, f.Branch, rev)
	if err != nil {
		return nil, errors.WithMessagef(err, "couldn't find %s on %s", rev, f.Branch)
	}
	cands, err := regression.NewClassifier(env.Config.MaxDepth).CandidateRegressions(ctx, p, kind)
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't compute candidates")
	}
	return regression.SortRunnables(cands), nil
}

func writeReport(w io.Writer, output string, report *regression.Report) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text":
		fmt.Fprintf(w, "push %d on %s (%s), %dh of tasks\n", report.Push.ID, report.Push.Branch, report.Push.Rev(), report.DurationHours)
		if report.BustageFixedBy != "" {
			fmt.Fprintf(w, "bustage fixed by %s\n", report.BustageFixedBy)
		}
		if len(report.Regressions) == 0 {
			fmt.Fprintf(w, "no regressions among %d candidates\n", len(report.Candidates))
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERDICT\tDISTANCE\tSTATUS\tMEDIAN\tRUNNABLE")
		for _, v := range report.Regressions {
			verdict := "possible"
			if v.Likely {
				verdict = "likely"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", verdict, v.Distance.Total, v.Status, v.MedianDuration.Round(time.Second), v.Runnable.Name)
		}
		return tw.Flush()
	default:
		return errors.Errorf("invalid output format: %s", output)
	}
}

func NewCandidatesCommand() *cobra.Command {
	f := NewRegressionsFlags()

	cmd := &cobra.Command{
		Use:   "candidates REV",
		Short: "List the runnables that may have been broken by a push",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer metrics.PushToGateway()
			ctx, cancel := context.WithTimeout(context.Background(), f.Timeout)
			defer cancel()

			sorted, err := f.candidates(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			if f.Output == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sorted)
			}
			for _, r := range sorted {
				fmt.Fprintln(os.Stdout, r.Name)
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
