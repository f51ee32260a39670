package param

import (
	"net/http"
	"regexp"

	log "github.com/sirupsen/logrus"
)

// when requesting a param, also validate it against a regexp to ensure it is what we expect
var wordRegexp = regexp.MustCompile(`^[\w]+$`)
var numRegexp = regexp.MustCompile(`^[\d]+$`)
var paramRegexp = map[string]*regexp.Regexp{
	"branch":       regexp.MustCompile(`^[-.\w]+(/[-.\w]+)*$`),
	"rev":          regexp.MustCompile(`^[0-9a-fA-F]{12,40}$`),
	"kind":         wordRegexp,
	"maxDepth":     numRegexp,
	"forceRefresh": regexp.MustCompile(`^(true|false)$`),
}

// SafeRead returns the value of a query parameter only if it matches the expected format,
// and "" otherwise. ok is false for a value that was present but rejected.
func SafeRead(req *http.Request, name string) (value string, ok bool) {
	re, known := paramRegexp[name]
	if !known {
		log.Fatalf("code BUG: request for unknown param %s", name) // revive:disable-line:deep-exit
	}
	value = req.URL.Query().Get(name)
	if value == "" || re.MatchString(value) {
		return value, true
	}
	log.Warnf("invalid value for %s param: %q", name, value)
	return "", false
}
