// Package archive keeps every downloaded workbook in S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	appLog "rozklad/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Options configures the storage endpoint.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// Minio stores workbooks in one bucket. The bucket is created on first use.
type Minio struct {
	client *minio.Client
	opts   Options

	mu    sync.Mutex
	ready bool
}

// NewMinio creates a client; no request is made until Put.
func NewMinio(opts Options) (*Minio, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("archive: endpoint is empty")
	}
	if opts.Bucket == "" {
		return nil, errors.New("archive: bucket is empty")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: new client: %w", err)
	}
	return &Minio{client: client, opts: opts}, nil
}

// Put uploads body under ObjectName and returns the object name.
func (m *Minio) Put(ctx context.Context, updateDate string, body []byte) (string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return "", err
	}
	name := ObjectName(m.opts.Prefix, updateDate, body)
	_, err := m.client.PutObject(ctx, m.opts.Bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: xlsxContentType,
		UserMetadata: map[string]string{
			"update-date": updateDate,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s/%s: %w", m.opts.Bucket, name, err)
	}
	appLog.Info("workbook archived", "bucket", m.opts.Bucket, "object", name, "bytes", len(body))
	return name, nil
}

func (m *Minio) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.opts.Bucket)
	if err != nil {
		return fmt.Errorf("archive: bucket %s: %w", m.opts.Bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.opts.Bucket, minio.MakeBucketOptions{Region: m.opts.Region}); err != nil {
			return fmt.Errorf("archive: make bucket %s: %w", m.opts.Bucket, err)
		}
		appLog.Info("archive bucket created", "bucket", m.opts.Bucket)
	}
	m.ready = true
	return nil
}

// ObjectName is "<prefix>/<date>-<sha8>.xlsx". A "dd.mm.yyyy" update date is
// rewritten as yyyy-mm-dd so objects sort chronologically.
func ObjectName(prefix, updateDate string, body []byte) string {
	sum := sha256.Sum256(body)
	date := "undated"
	if t, err := time.Parse("02.01.2006", updateDate); err == nil {
		date = t.Format("2006-01-02")
	} else if s := sanitize(updateDate); s != "" {
		date = s
	}
	return path.Join(strings.Trim(prefix, "/"), date+"-"+hex.EncodeToString(sum[:4])+".xlsx")
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			b.WriteRune(r)
		case r == '.' || r == ' ' || r == '/':
			b.WriteRune('-')
		}
	}
	return b.String()
}
