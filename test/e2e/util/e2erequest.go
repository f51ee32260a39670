package util

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/openshift/culprit/pkg/culpritclient"
)

const (
	// Branch is the branch of the pushes in testdata/pushes.yaml, which the e2e setup seeds
	// before starting the server.
	Branch = "autoland"

	// APIPort is the port the e2e setup launches the culprit API on.
	APIPort = 18080
)

func buildURL() string {
	envAPIPort := os.Getenv("CULPRIT_API_PORT")
	envEndpoint := os.Getenv("CULPRIT_ENDPOINT")

	var port = APIPort
	if len(envAPIPort) > 0 {
		val, err := strconv.Atoi(envAPIPort)
		if err == nil {
			port = val
		}
	}
	if len(envEndpoint) == 0 {
		envEndpoint = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(envEndpoint, strconv.Itoa(port)))
}

// Client returns an API client for the server under test.
func Client() *culpritclient.Client {
	return culpritclient.New(culpritclient.WithServerURL(buildURL()))
}

// Rev returns the head revision of push id in testdata/pushes.yaml.
func Rev(id int) string {
	return fmt.Sprintf("%012d%s", id, "0000000000000000000000000000")
}
