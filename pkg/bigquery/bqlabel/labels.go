package bqlabel

import (
	"os"
	"strings"
	"unicode"

	"cloud.google.com/go/bigquery"
	"github.com/sirupsen/logrus"
)

// Context is the set of labels attached to a query, so warehouse costs can be traced back
// to the command and the request that caused them.
type Context struct {
	App         string
	Command     string
	Environment EnvValue
	Host        string
	Operator    string
	Query       QueryValue
	URIPath     string
}

type EnvValue string
type QueryValue string

const (
	KeyApp      = "client-application"
	KeyCmd      = "client-command"
	KeyEnv      = "client-env"
	KeyHost     = "client-host"
	KeyOperator = "client-operator"
	KeyQuery    = "query-details"
	KeyURI      = "request-uri"

	AppCulprit = "culprit"

	EnvCli    EnvValue = "cli"
	EnvServer EnvValue = "server"

	PushTasks   QueryValue = "push-tasks"
	PushInfo    QueryValue = "push-info"
	PushByID    QueryValue = "push-by-id"
	Backouts    QueryValue = "backouts"
	CacheLookup QueryValue = "cache-lookup"
)

// sanitizeLabelValue lowercases value, replaces characters BigQuery does not accept in
// label values with underscores and truncates it to 63 characters.
func sanitizeLabelValue(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(strings.ToLower(value))
	for idx, r := range runes {
		if !(unicode.IsLower(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			runes[idx] = '_'
		}
	}
	if len(runes) > 63 {
		runes = runes[:63]
	}
	return string(runes)
}

// WithQuery returns a copy of x labeled for query q.
func (x Context) WithQuery(q QueryValue) Context {
	x.Query = q
	return x
}

func (x Context) ApplyLabels(query *bigquery.Query) {
	app := x.App
	if app == "" {
		app = AppCulprit
	}
	labels := map[string]string{
		KeyApp:      app,
		KeyCmd:      x.Command,
		KeyEnv:      string(x.Environment),
		KeyHost:     x.Host,
		KeyOperator: x.Operator,
		KeyQuery:    string(x.Query),
	}
	if x.Operator == "" {
		labels[KeyOperator] = os.Getenv("USER")
	}
	if x.Host == "" {
		labels[KeyHost] = os.Getenv("HOSTNAME")
	}
	if x.URIPath != "" {
		labels[KeyURI] = x.URIPath
	}

	sanitizedLabels := make(map[string]string, len(labels))
	for key, value := range labels {
		sanitizedLabels[key] = sanitizeLabelValue(value)
	}

	logrus.Debugf("Sanitized labels for query: %+v", sanitizedLabels)
	query.Labels = sanitizedLabels
}
