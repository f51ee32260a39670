package util

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/openshift/culprit/pkg/db"
	"github.com/openshift/culprit/pkg/db/models"
)

func CreateE2EPostgresConnection(t *testing.T) *db.DB {
	require.NotEqual(t, "", os.Getenv("CULPRIT_E2E_DSN"),
		"CULPRIT_E2E_DSN environment variable not set")

	dbc, err := db.New(db.DriverPostgres, os.Getenv("CULPRIT_E2E_DSN"), logger.Info)
	require.NoError(t, err, "error connecting to db")

	// Simple check that someone doesn't accidentally run the e2es against the prod db:
	var totalPushes int64
	dbc.DB.Model(&models.Push{}).Count(&totalPushes)
	require.Less(t, int(totalPushes), 100, "found too many pushes in db, possible indicator someone is running e2e against prod, please clean out pushes if this is not the case")

	return dbc
}
