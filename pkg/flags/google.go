package flags

import (
	"os"

	"github.com/spf13/pflag"
)

// GoogleCloudFlags contain configuration information for Google cloud-related services.
type GoogleCloudFlags struct {
	ServiceAccountCredentialFile string
	StorageBucket                string
	StoragePrefix                string
}

func NewGoogleCloudFlags() *GoogleCloudFlags {
	return &GoogleCloudFlags{
		ServiceAccountCredentialFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
	}
}

func (f *GoogleCloudFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ServiceAccountCredentialFile,
		"google-service-account-credential-file",
		f.ServiceAccountCredentialFile,
		"location of a credential file described by https://cloud.google.com/docs/authentication/production")

	fs.StringVar(&f.StorageBucket, "google-storage-bucket", f.StorageBucket, "GCS bucket holding task artifacts; overrides the config file")
	fs.StringVar(&f.StoragePrefix, "google-storage-prefix", f.StoragePrefix, "Object prefix of the task artifacts")
}
