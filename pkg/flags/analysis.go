package flags

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
)

// AnalysisFlags tune the classifier. Flags that are set win over the config file.
type AnalysisFlags struct {
	MaxDepth     int
	Tier         int
	Kind         string
	Concurrency  int
	ForceRefresh bool

	fs *pflag.FlagSet
}

func NewAnalysisFlags() *AnalysisFlags {
	return &AnalysisFlags{
		MaxDepth:    configv1.DefaultMaxDepth,
		Kind:        string(v1.KindLabel),
		Concurrency: configv1.DefaultConcurrency,
	}
}

func (f *AnalysisFlags) BindFlags(fs *pflag.FlagSet) {
	f.fs = fs
	fs.IntVar(&f.MaxDepth, "max-depth", f.MaxDepth, "Pushes to look at in each direction")
	fs.IntVar(&f.Tier, "tier", f.Tier, "Ignore tasks above this tier; 0 keeps every task")
	fs.StringVar(&f.Kind, "kind", f.Kind, "Runnable kind: {label,group}")
	fs.IntVar(&f.Concurrency, "concurrency", f.Concurrency, "Parallel task fetches when prefetching a window")
	fs.BoolVar(&f.ForceRefresh, "force-refresh", f.ForceRefresh, "Ignore cached push tasks")
}

func (f *AnalysisFlags) Validate() error {
	if _, err := f.RunnableKind(); err != nil {
		return err
	}
	if f.MaxDepth < 1 {
		return errors.Errorf("--max-depth must be positive, got %d", f.MaxDepth)
	}
	return nil
}

func (f *AnalysisFlags) RunnableKind() (v1.RunnableKind, error) {
	kind, ok := v1.ParseRunnableKind(f.Kind)
	if !ok {
		return "", errors.Errorf("unknown runnable kind %q", f.Kind)
	}
	return kind, nil
}

func (f *AnalysisFlags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// Apply copies the flags that were set into config.
func (f *AnalysisFlags) Apply(config *configv1.CulpritConfig) {
	if f.changed("max-depth") {
		config.MaxDepth = f.MaxDepth
	}
	if f.changed("tier") {
		config.Tier = f.Tier
	}
	if f.changed("concurrency") {
		config.Concurrency = f.Concurrency
	}
}
