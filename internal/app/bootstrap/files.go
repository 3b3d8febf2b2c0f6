package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/internal/files"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// BuildObjectStore returns the S3-backed store for patient files. Without a
// bucket the store is disabled and uploads are rejected.
func BuildObjectStore(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *files.ObjectStore {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.FilesBucket) == "" || awsCfg == nil {
		logger.Warn("files bucket not configured; patient file uploads disabled")
		return files.NewObjectStore(nil, "")
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO serve buckets by path.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return files.NewObjectStore(client, cfg.FilesBucket)
}
