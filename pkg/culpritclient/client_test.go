package culpritclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
	"github.com/openshift/culprit/pkg/culpritserver"
	"github.com/openshift/culprit/pkg/datasource"
	"github.com/openshift/culprit/pkg/push/pushtest"
)

const label = "test-linux1804-64/opt-xpcshell-2"

func newClient(t *testing.T) *Client {
	src, err := pushtest.Source(time.Now(),
		pushtest.Spec{Tasks: []v1.Task{pushtest.Pass(label)}},
		pushtest.Spec{Tasks: []v1.Task{pushtest.Fail(label)}, BackedOutBy: pushtest.Rev(3)},
		pushtest.Spec{Tasks: []v1.Task{pushtest.Pass(label)}},
	)
	require.NoError(t, err)
	s := culpritserver.NewServer(":0", datasource.NewHandler(src), configv1.Default(), nil)
	s.Registerer = prometheus.NewRegistry()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return New(WithServerURL(ts.URL+"/"), WithHTTPClient(ts.Client()))
}

func TestClient(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	sources, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"local"}, sources)

	report, err := c.Regressions(ctx, Query{Branch: pushtest.Branch, Rev: pushtest.Rev(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Push.ID)
	assert.Equal(t, []v1.Runnable{{Kind: v1.KindLabel, Name: label}}, report.Likely)

	cands, err := c.Candidates(ctx, Query{Rev: pushtest.Rev(2), Kind: v1.KindLabel, MaxDepth: 2})
	require.NoError(t, err)
	assert.Equal(t, []v1.Runnable{{Kind: v1.KindLabel, Name: label}}, cands)
}

func TestClientErrors(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.Regressions(ctx, Query{Rev: "ffffffffffff"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, v1.ErrPushNotFound))

	_, err = c.Candidates(ctx, Query{Rev: "xyz"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Message, "rev")
}

func TestQueryEncode(t *testing.T) {
	assert.Equal(t, "rev=0123456789ab", Query{Rev: "0123456789ab"}.encode())
	assert.Equal(t, "branch=try&forceRefresh=true&kind=group&maxDepth=3&rev=0123456789ab",
		Query{Branch: "try", Rev: "0123456789ab", Kind: v1.KindGroup, MaxDepth: 3, ForceRefresh: true}.encode())
}
