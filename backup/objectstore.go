package backup

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"infrakt.dev/common"
	"infrakt.dev/config"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

// RemoteObject is one replicated dump in the object store.
type RemoteObject struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

func s3Client(ctx context.Context, cfg *store.ObjectStoreConfig, secretKey string) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, secretKey, "")),
	)
	if err != nil {
		return nil, common.Internalf(err, "failed to build object store client")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// VerifyObjectStore checks the configuration can actually reach the
// bucket before it is saved.
func VerifyObjectStore(ctx context.Context, cfg *store.ObjectStoreConfig, secretKey string) error {
	if cfg.Bucket == "" {
		return common.Validationf("object store bucket is required")
	}
	client, err := s3Client(ctx, cfg, secretKey)
	if err != nil {
		return err
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return common.Validationf("object store verification failed: cannot access bucket %q", cfg.Bucket)
	}
	return nil
}

const remoteCredsPath = "/tmp/.infrakt-s3-env"

// withRemoteCreds wraps a host-side aws CLI invocation so credentials
// live only in a short-lived mode-600 file that is removed afterwards.
func withRemoteCreds(runner remote.Runner, cfg *store.ObjectStoreConfig, secretKey, awsCmd string) (string, error) {
	creds := fmt.Sprintf("export AWS_ACCESS_KEY_ID=%s\nexport AWS_SECRET_ACCESS_KEY=%s\n",
		remote.Quote(cfg.AccessKey), remote.Quote(secretKey))
	if err := runner.UploadString(creds, remoteCredsPath, "600"); err != nil {
		return "", common.Remotef(err, "failed to stage object store credentials")
	}
	cmd := fmt.Sprintf(". %s && %s; rc=$?; rm -f %s; exit $rc", remoteCredsPath, awsCmd, remoteCredsPath)
	out, err := runner.RunChecked(cmd, remote.PullTimeout)
	if err != nil {
		return "", common.Remotef(err, "object store operation failed")
	}
	return out, nil
}

// RemoteList lists the replicated dumps for an app via the host's aws
// CLI.
func RemoteList(runner remote.Runner, cfg *store.ObjectStoreConfig, secretKey, app string) ([]RemoteObject, error) {
	target := objectStorePath(cfg, app)
	out, err := withRemoteCreds(runner, cfg, secretKey,
		fmt.Sprintf("aws s3 ls %s/%s", target, endpointFlag(cfg)))
	if err != nil {
		return nil, err
	}
	return parseS3Listing(out), nil
}

// parseS3Listing reads `aws s3 ls` lines of the form
// "2026-08-25 03:00:01    14523 app_20260825_030001.sql.gz".
func parseS3Listing(out string) []RemoteObject {
	var objects []RemoteObject
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 4 {
			continue
		}
		ts, err := time.Parse("2006-01-02 15:04:05", fields[0]+" "+fields[1])
		if err != nil {
			continue
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		objects = append(objects, RemoteObject{
			Name:       strings.Join(fields[3:], " "),
			Size:       size,
			ModifiedAt: ts,
		})
	}
	return objects
}

// RemoteDownload pulls one replicated dump back into the host backup
// directory so it can be restored.
func RemoteDownload(runner remote.Runner, cfg *store.ObjectStoreConfig, secretKey, app, filename string) error {
	if strings.ContainsAny(filename, "/\\") {
		return common.Validationf("invalid backup filename %q", filename)
	}
	dest := path.Join(config.RemoteBackupsDir(), filename)
	src := objectStorePath(cfg, app)
	cmd := fmt.Sprintf("mkdir -p %s && aws s3 cp %s/%s %s%s",
		remote.Quote(config.RemoteBackupsDir()), src, remote.Quote(filename), remote.Quote(dest), endpointFlag(cfg))
	_, err := withRemoteCreds(runner, cfg, secretKey, cmd)
	return err
}
