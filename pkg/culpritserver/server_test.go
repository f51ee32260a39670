package culpritserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
	"github.com/openshift/culprit/pkg/datasource"
	"github.com/openshift/culprit/pkg/push/pushtest"
	"github.com/openshift/culprit/pkg/regression"
)

const label = "test-linux1804-64/opt-mochitest-browser-chrome-3"

func newTestServer(t *testing.T) *httptest.Server {
	src, err := pushtest.Source(time.Now(),
		pushtest.Spec{Tasks: []v1.Task{pushtest.Pass(label)}},
		pushtest.Spec{Tasks: []v1.Task{pushtest.Pass(label)}},
		pushtest.Spec{Tasks: []v1.Task{pushtest.Fail(label)}, BackedOutBy: pushtest.Rev(4)},
		pushtest.Spec{Tasks: []v1.Task{pushtest.Pass(label)}},
	)
	require.NoError(t, err)

	s := NewServer(":0", datasource.NewHandler(src), configv1.Default(), nil)
	s.Registerer = prometheus.NewRegistry()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, into interface{}) int {
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var health healthResponse
	assert.Equal(t, http.StatusOK, get(t, ts, "/api/health", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, []string{"local"}, health.Sources)
}

func TestRegressions(t *testing.T) {
	ts := newTestServer(t)

	var report regression.Report
	code := get(t, ts, "/api/regressions?branch=autoland&rev="+pushtest.Rev(3), &report)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, report.Push.ID)
	assert.Equal(t, v1.KindLabel, report.Kind)
	assert.Equal(t, configv1.DefaultMaxDepth, report.MaxDepth)
	require.Len(t, report.Regressions, 1)
	assert.Equal(t, label, report.Regressions[0].Runnable.Name)
	assert.True(t, report.Regressions[0].Likely)
	assert.Equal(t, []v1.Runnable{{Kind: v1.KindLabel, Name: label}}, report.Likely)
	assert.Empty(t, report.Possible)
}

func TestCandidates(t *testing.T) {
	ts := newTestServer(t)

	var resp CandidatesResponse
	code := get(t, ts, "/api/candidates?rev="+pushtest.Rev(3)+"&maxDepth=3", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []v1.Runnable{{Kind: v1.KindLabel, Name: label}}, resp.Candidates)

	code = get(t, ts, "/api/candidates?rev="+pushtest.Rev(2), &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Candidates)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		path string
		code int
	}{
		{name: "missing rev", path: "/api/regressions", code: http.StatusBadRequest},
		{name: "bad kind", path: "/api/regressions?rev=abc&kind=suite", code: http.StatusBadRequest},
		{name: "bad depth", path: "/api/candidates?rev=abc&maxDepth=-2", code: http.StatusBadRequest},
		{name: "depth above the limit", path: "/api/regressions?rev=" + pushtest.Rev(3) + "&maxDepth=1000000", code: http.StatusBadRequest},
		{name: "unknown push", path: "/api/regressions?rev=ffffffffffff", code: http.StatusNotFound},
		{name: "unknown branch", path: "/api/candidates?branch=try&rev=" + pushtest.Rev(3), code: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body map[string]interface{}
			assert.Equal(t, tc.code, get(t, ts, tc.path, &body))
			assert.EqualValues(t, tc.code, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestParseRequest(t *testing.T) {
	s := NewServer(":0", datasource.NewHandler(), configv1.Default(), nil)
	tests := []struct {
		name    string
		query   string
		want    request
		wantErr bool
	}{
		{
			name:  "defaults",
			query: "rev=0123456789ab",
			want:  request{branch: "autoland", rev: "0123456789ab", kind: v1.KindLabel, maxDepth: configv1.DefaultMaxDepth},
		},
		{
			name:  "everything",
			query: "branch=mozilla-central&rev=0123456789ab&kind=group&maxDepth=4&forceRefresh=true",
			want:  request{branch: "mozilla-central", rev: "0123456789ab", kind: v1.KindGroup, maxDepth: 4, refresh: true},
		},
		{name: "short rev", query: "rev=abc", wantErr: true},
		{name: "zero depth", query: "rev=0123456789ab&maxDepth=0", wantErr: true},
		{
			name:  "depth at the limit",
			query: "rev=0123456789ab&maxDepth=" + strconv.Itoa(maxDepthFactor*configv1.DefaultMaxDepth),
			want:  request{branch: "autoland", rev: "0123456789ab", kind: v1.KindLabel, maxDepth: maxDepthFactor * configv1.DefaultMaxDepth},
		},
		{name: "depth above the limit", query: "rev=0123456789ab&maxDepth=" + strconv.Itoa(maxDepthFactor*configv1.DefaultMaxDepth+1), wantErr: true},
		{name: "branch injection", query: "rev=0123456789ab&branch=a;drop", wantErr: true},
		{name: "bad refresh", query: "rev=0123456789ab&forceRefresh=yes", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/regressions?"+tc.query, nil)
			got, err := s.parseRequest(req)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
