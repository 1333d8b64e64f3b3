package cmd

import (
	"context"

	"github.com/quayside/s3glob/pkg/provider/s3"
)

// openStore builds an S3 provider for bucket using the resolved connection
// identity. Centralized here so ls/dl/doctor never drift on credential or
// endpoint handling.
func openStore(ctx context.Context, bucket string) (*s3.Provider, error) {
	id := GetAppIdentity()
	cfg := s3.Config{
		Bucket:         bucket,
		Region:         id.Region,
		Endpoint:       id.Endpoint,
		ForcePathStyle: id.Endpoint != "",
		NoSignRequest:  id.NoSignRequest,
	}
	return s3.New(ctx, cfg)
}
