// Package hgmo resolves pushes and backouts from a Mercurial pushlog server.
package hgmo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/datasource/restclient"
)

const (
	Name       = "hgmo"
	DefaultURL = "https://hg.mozilla.org"
)

// Source fills the push and backout contracts.
type Source struct {
	client *restclient.Client
	// Repos maps branch names to repository paths when they differ.
	Repos map[string]string
}

func New(client *restclient.Client) *Source {
	return &Source{
		client: client,
		Repos:  map[string]string{"autoland": "integration/autoland"},
	}
}

func (s *Source) Name() string {
	return Name
}

func (s *Source) repo(branch string) string {
	if r, ok := s.Repos[branch]; ok {
		return r
	}
	return branch
}

// changesets returns the automation relevant changesets of the push containing rev.
func (s *Source) changesets(ctx context.Context, branch, rev string) ([]gjson.Result, error) {
	res, err := s.client.Get(ctx, fmt.Sprintf("/%s/json-automationrelevance/%s", s.repo(branch), url.PathEscape(rev)), url.Values{"backouts": []string{"1"}})
	if err != nil {
		return nil, err
	}
	changesets := res.Get("changesets").Array()
	if len(changesets) == 0 {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "%s on %s", rev, branch)
	}
	return changesets, nil
}

func (s *Source) PushInfo(ctx context.Context, branch, rev string) (*v1.PushInfo, error) {
	changesets, err := s.changesets(ctx, branch, rev)
	if err != nil {
		return nil, err
	}

	first := changesets[0]
	info := &v1.PushInfo{
		ID:     int(first.Get("pushid").Int()),
		Branch: branch,
		Date:   time.Unix(first.Get("pushdate.0").Int(), 0).UTC(),
		Author: first.Get("pushuser").String(),
	}

	bugs := map[string]struct{}{}
	// the pushlog lists changesets oldest first, the head goes first here
	for i := len(changesets) - 1; i >= 0; i-- {
		cs := changesets[i]
		info.Revs = append(info.Revs, cs.Get("node").String())
		if info.BackedOutBy == "" {
			info.BackedOutBy = cs.Get("backedoutby").String()
		}
		for _, bug := range cs.Get("bugs.#.no").Array() {
			if _, ok := bugs[bug.String()]; !ok {
				bugs[bug.String()] = struct{}{}
				info.Bugs = append(info.Bugs, bug.String())
			}
		}
	}
	return info, nil
}

// PushByID looks up the head of push id in the pushlog, then resolves it like PushInfo.
func (s *Source) PushByID(ctx context.Context, branch string, id int) (*v1.PushInfo, error) {
	if id < 1 {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "push id %d on %s", id, branch)
	}
	res, err := s.client.Get(ctx, fmt.Sprintf("/%s/json-pushes", s.repo(branch)), url.Values{
		"version": []string{"2"},
		"startID": []string{strconv.Itoa(id - 1)},
		"endID":   []string{strconv.Itoa(id)},
	})
	if err != nil {
		return nil, err
	}

	changesets := res.Get("pushes." + strconv.Itoa(id) + ".changesets").Array()
	if len(changesets) == 0 {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "push id %d on %s", id, branch)
	}
	head := changesets[len(changesets)-1].String()
	return s.PushInfo(ctx, branch, head)
}

// BackedOutRevs returns the revisions the changeset ref backs out.
func (s *Source) BackedOutRevs(ctx context.Context, branch, ref string) ([]string, error) {
	changesets, err := s.changesets(ctx, branch, ref)
	if err != nil {
		return nil, err
	}
	var revs []string
	for _, cs := range changesets {
		if !v1.SameRev(cs.Get("node").String(), ref) {
			continue
		}
		for _, node := range cs.Get("backsoutnodes.#.node").Array() {
			revs = append(revs, node.String())
		}
	}
	return revs, nil
}
