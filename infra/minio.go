package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"sort"

	"github.com/google/uuid"
	"github.com/minio/madmin-go/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tnqbao/gau-site-director/config"
	"github.com/tnqbao/gau-site-director/entity"
)

type MinioClient struct {
	Admin    *madmin.AdminClient
	Client   *minio.Client
	Endpoint string
	Bucket   string
}

// ArchiveHealth is what /health reports about the trace archive backend.
type ArchiveHealth struct {
	Mode    string `json:"mode"`
	Servers int    `json:"servers"`
	Online  int    `json:"online"`
}

func InitMinioClient(cfg *config.EnvConfig) *MinioClient {
	endpoint := cfg.Minio.Endpoint
	if endpoint == "" {
		panic("MinIO endpoint is not configured")
	}

	rootUser := cfg.Minio.RootUser
	if rootUser == "" {
		panic("MinIO root user is not configured")
	}

	rootPassword := cfg.Minio.RootPassword
	if rootPassword == "" {
		panic("MinIO root password is not configured")
	}

	madminClient, err := madmin.New(endpoint, rootUser, rootPassword, cfg.Minio.UseSSL)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize MinIO admin client: %v", err))
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(rootUser, rootPassword, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize MinIO client: %v", err))
	}

	client := &MinioClient{
		Admin:    madminClient,
		Client:   minioClient,
		Endpoint: endpoint,
		Bucket:   cfg.Minio.ArchiveBucket,
	}
	if err := client.EnsureBucket(context.Background()); err != nil {
		log.Printf("Warning: operation archive bucket unavailable: %v", err)
	}
	return client
}

func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.Client.BucketExists(ctx, m.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", m.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.Client.MakeBucket(ctx, m.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", m.Bucket, err)
	}
	return nil
}

func traceKey(siteID, operationID uint) string {
	return fmt.Sprintf("sites/%d/operations/%d-%s.json", siteID, operationID, uuid.NewString())
}

// ArchiveOperation stores a finished run and returns its object key.
func (m *MinioClient) ArchiveOperation(ctx context.Context, trace entity.OperationTrace) (string, error) {
	data, err := json.Marshal(trace)
	if err != nil {
		return "", fmt.Errorf("failed to encode operation trace: %w", err)
	}

	key := traceKey(trace.SiteID, trace.OperationID)
	_, err = m.Client.PutObject(ctx, m.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload operation trace: %w", err)
	}
	return key, nil
}

// ListOperationTraces returns the archived runs of a site, oldest first.
func (m *MinioClient) ListOperationTraces(ctx context.Context, siteID uint, limit int) ([]entity.OperationTrace, error) {
	prefix := fmt.Sprintf("sites/%d/operations/", siteID)

	var keys []minio.ObjectInfo
	for obj := range m.Client.ListObjects(ctx, m.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list operation traces: %w", obj.Err)
		}
		if path.Ext(obj.Key) == ".json" {
			keys = append(keys, obj)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].LastModified.Before(keys[j].LastModified) })
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	traces := make([]entity.OperationTrace, 0, len(keys))
	for _, info := range keys {
		obj, err := m.Client.GetObject(ctx, m.Bucket, info.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to read trace %s: %w", info.Key, err)
		}
		var trace entity.OperationTrace
		err = json.NewDecoder(obj).Decode(&trace)
		obj.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode trace %s: %w", info.Key, err)
		}
		traces = append(traces, trace)
	}
	return traces, nil
}

func (m *MinioClient) Health(ctx context.Context) (ArchiveHealth, error) {
	info, err := m.Admin.ServerInfo(ctx)
	if err != nil {
		return ArchiveHealth{}, fmt.Errorf("failed to query MinIO server info: %w", err)
	}

	health := ArchiveHealth{Mode: info.Mode, Servers: len(info.Servers)}
	for _, s := range info.Servers {
		if s.State == "online" {
			health.Online++
		}
	}
	return health, nil
}
