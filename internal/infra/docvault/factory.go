package docvault

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Vault implementation using environment variables.
//
//	DOSECORE_DOC_DRIVER: fs|s3|memory (default fs)
//	DOSECORE_DOC_FS_ROOT: directory root when driver=fs (default ./docvault)
//	(S3 specific variables documented on OpenS3FromEnv)
func Open(ctx context.Context) (Vault, error) {
	driver := os.Getenv("DOSECORE_DOC_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("DOSECORE_DOC_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown docvault driver %s", driver)
	}
}
