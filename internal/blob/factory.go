package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects a Store implementation from environment variables.
//
//	COMPTRACK_BLOB_DRIVER: fs|s3|memory (default fs)
//	COMPTRACK_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	COMPTRACK_BLOB_S3_BUCKET: bucket name, required for s3
//	COMPTRACK_BLOB_S3_REGION: region (default us-east-1)
//	COMPTRACK_BLOB_S3_ENDPOINT: custom endpoint for MinIO
//	COMPTRACK_BLOB_S3_PATH_STYLE: true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN: optional
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("COMPTRACK_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("COMPTRACK_BLOB_FS_ROOT"))
	case DriverS3:
		bucket := os.Getenv("COMPTRACK_BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("COMPTRACK_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, S3Config{
			Bucket:          bucket,
			Region:          os.Getenv("COMPTRACK_BLOB_S3_REGION"),
			Endpoint:        os.Getenv("COMPTRACK_BLOB_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			PathStyle:       strings.EqualFold(os.Getenv("COMPTRACK_BLOB_S3_PATH_STYLE"), "true"),
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
