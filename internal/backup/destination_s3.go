package backup

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/yourusername/mc-server-panel/internal/config"
)

// S3Destination stores backups in AWS S3 or S3-compatible storage
type S3Destination struct {
	bucket   string
	prefix   string
	s3Client *s3.S3
}

// NewS3Destination creates a new S3 destination
func NewS3Destination(cfg config.DestinationConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.S3Region),
	}
	// without static keys the default chain (env, shared config, instance role) applies
	if cfg.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, "")
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Printf("[S3Dest] Initialized S3 destination: bucket=%s, region=%s", cfg.S3Bucket, cfg.S3Region)

	return &S3Destination{
		bucket:   cfg.S3Bucket,
		prefix:   strings.Trim(cfg.Path, "/"),
		s3Client: s3.New(sess),
	}, nil
}

func (sd *S3Destination) key(filename string) string {
	return path.Join(sd.prefix, filename)
}

// Upload uploads a backup file to S3. Readers that cannot seek are read into
// memory first, since the request is signed over the body.
func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Uploading %s to s3://%s/%s (%d bytes)", filename, sd.bucket, key, sizeBytes)

	body, ok := reader.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read data: %w", err)
		}
		body = bytes.NewReader(data)
	}

	_, err := sd.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(sd.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(sizeBytes),
		ContentType:   aws.String(contentType(filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Printf("[S3Dest] Upload complete: %s", filename)
	return nil
}

// Download downloads a backup file from S3
func (sd *S3Destination) Download(filename string, writer io.Writer) error {
	result, err := sd.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    aws.String(sd.key(filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

// Delete removes a backup file from S3
func (sd *S3Destination) Delete(filename string) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Deleting s3://%s/%s", sd.bucket, key)

	_, err := sd.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// List returns all backup files under the destination prefix
func (sd *S3Destination) List() ([]BackupFile, error) {
	prefix := sd.prefix
	if prefix != "" {
		prefix += "/"
	}

	var files []BackupFile
	err := sd.s3Client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			files = append(files, BackupFile{
				Filename:  name,
				SizeBytes: aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified).Unix(),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}
	return files, nil
}

// GetType returns the destination type
func (sd *S3Destination) GetType() string {
	return config.DestinationS3
}

func contentType(filename string) string {
	if strings.HasSuffix(filename, ".gz") {
		return "application/gzip"
	}
	return "application/x-tar"
}
