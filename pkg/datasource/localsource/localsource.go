// Package localsource serves push data from a YAML fixture. It backs offline runs of the
// CLI, the seed command and the tests of the packages above it.
package localsource

import (
	"context"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

const Name = "local"

// Fixture is the on disk format.
type Fixture struct {
	// Branch is used for pushes that do not name their own.
	Branch string        `yaml:"branch"`
	Pushes []FixturePush `yaml:"pushes"`
	// Backouts lists the revisions backed out by a backout commit, in addition to the
	// ones derived from backedoutby.
	Backouts map[string][]string `yaml:"backouts,omitempty"`
}

type FixturePush struct {
	v1.PushInfo     `yaml:",inline"`
	Tasks           []v1.Task                        `yaml:"tasks,omitempty"`
	Classifications map[string]v1.TaskClassification `yaml:"classifications,omitempty"`
}

// Source implements every data contract over a fixture.
type Source struct {
	byRev    map[string]*FixturePush
	byID     map[string]map[int]*FixturePush
	backouts map[string][]string
}

// Load reads a fixture file.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "could not read fixture")
	}
	return Parse(data)
}

func Parse(data []byte) (*Source, error) {
	f := Fixture{}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WithMessage(err, "could not parse fixture")
	}
	return New(f)
}

func New(f Fixture) (*Source, error) {
	s := &Source{
		byRev:    map[string]*FixturePush{},
		byID:     map[string]map[int]*FixturePush{},
		backouts: map[string][]string{},
	}
	for i := range f.Pushes {
		p := &f.Pushes[i]
		if p.Branch == "" {
			p.Branch = f.Branch
		}
		if p.Branch == "" || len(p.Revs) == 0 {
			return nil, errors.Errorf("fixture push %d needs a branch and at least one revision", p.ID)
		}
		if s.byID[p.Branch] == nil {
			s.byID[p.Branch] = map[int]*FixturePush{}
		}
		if _, dup := s.byID[p.Branch][p.ID]; dup {
			return nil, errors.Errorf("duplicate push id %d on %s", p.ID, p.Branch)
		}
		s.byID[p.Branch][p.ID] = p
		for _, rev := range p.Revs {
			s.byRev[revKey(p.Branch, rev)] = p
		}
		if p.BackedOutBy != "" {
			ref := v1.ShortRev(p.BackedOutBy)
			s.backouts[ref] = append(s.backouts[ref], p.Revs...)
		}
	}
	for ref, revs := range f.Backouts {
		ref = v1.ShortRev(ref)
		s.backouts[ref] = append(s.backouts[ref], revs...)
	}
	return s, nil
}

func revKey(branch, rev string) string {
	return branch + "/" + v1.ShortRev(rev)
}

func (s *Source) Name() string {
	return Name
}

func (s *Source) push(branch, rev string) (*FixturePush, error) {
	p, ok := s.byRev[revKey(branch, rev)]
	if !ok {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "%s on %s", rev, branch)
	}
	return p, nil
}

func (s *Source) PushTasks(_ context.Context, branch, rev string) ([]v1.Task, error) {
	p, err := s.push(branch, rev)
	if err != nil {
		return nil, err
	}
	return append([]v1.Task(nil), p.Tasks...), nil
}

func (s *Source) PushTaskClassifications(_ context.Context, branch, rev string) (map[string]v1.TaskClassification, error) {
	p, err := s.push(branch, rev)
	if err != nil {
		return nil, err
	}
	out := make(map[string]v1.TaskClassification, len(p.Classifications))
	for id, c := range p.Classifications {
		out[id] = c
	}
	return out, nil
}

func (s *Source) PushInfo(_ context.Context, branch, rev string) (*v1.PushInfo, error) {
	p, err := s.push(branch, rev)
	if err != nil {
		return nil, err
	}
	info := p.PushInfo
	return &info, nil
}

func (s *Source) PushByID(_ context.Context, branch string, id int) (*v1.PushInfo, error) {
	p, ok := s.byID[branch][id]
	if !ok {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "push id %d on %s", id, branch)
	}
	info := p.PushInfo
	return &info, nil
}

func (s *Source) BackedOutRevs(_ context.Context, _, ref string) ([]string, error) {
	return append([]string(nil), s.backouts[v1.ShortRev(ref)]...), nil
}

// Pushes returns every push of the fixture ordered by branch and id.
func (s *Source) Pushes() []FixturePush {
	var out []FixturePush
	for _, pushes := range s.byID {
		for _, p := range pushes {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Branch != out[j].Branch {
			return out[i].Branch < out[j].Branch
		}
		return out[i].ID < out[j].ID
	})
	return out
}
