// Package backup snapshots the roster database, encrypts it, and uploads it
// to S3-compatible storage.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/store"
)

var (
	ErrDisabled   = errors.New("backup not configured: S3 credentials missing")
	ErrInProgress = errors.New("a backup is already running")
	ErrNotFound   = errors.New("backup not found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Config struct {
	Endpoint       string
	Bucket         string
	Region         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

func (c S3Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3         S3Config
	Passphrase string
	KeyPrefix  string
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager runs on-demand encrypted backups.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback

	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	logger  *slog.Logger
}

// NewManager creates a backup Manager. callback may be nil.
func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger, callback StatusCallback) *Manager {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "memberqr"
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:      cfg,
		db:       db,
		backups:  bs,
		callback: callback,
		logger:   logger.With("component", "backup"),
		status:   Status{State: StateDisabled},
	}
	if cfg.S3.enabled() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.ForcePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// begin moves the manager into the running state, refusing a second run.
func (m *Manager) begin() (s3Client, error) {
	m.mu.Lock()
	if m.client == nil {
		m.mu.Unlock()
		return nil, ErrDisabled
	}
	if m.status.State == StateRunning {
		m.mu.Unlock()
		return nil, ErrInProgress
	}
	m.status = Status{State: StateRunning, LastBackup: m.status.LastBackup}
	s, client := m.status, m.client
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
	return client, nil
}

// RunNow snapshots, encrypts and uploads the database, recording the attempt
// in the backups table. It returns the backup record id.
func (m *Manager) RunNow(ctx context.Context) (int64, error) {
	client, err := m.begin()
	if err != nil {
		return 0, err
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	filename := fmt.Sprintf("memberqr-%s.db.enc", stamp)
	key := fmt.Sprintf("%s/%s-%s", m.cfg.KeyPrefix, uuid.NewString(), filename)

	record, err := m.backups.Create(ctx, filename, key)
	if err != nil {
		m.fail(ctx, 0, err)
		return 0, fmt.Errorf("create backup record: %w", err)
	}

	if err := m.backups.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
		m.logger.Error("mark backup uploading", "backup_id", record.ID, "error", err)
	}

	size, err := m.upload(ctx, client, key)
	if err != nil {
		m.fail(ctx, record.ID, err)
		return record.ID, err
	}

	if err := m.backups.UpdateCompleted(ctx, record.ID, size); err != nil {
		m.logger.Error("mark backup completed", "backup_id", record.ID, "error", err)
	}
	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.logger.Info("backup uploaded", "backup_id", record.ID, "key", key, "size_bytes", size)
	return record.ID, nil
}

func (m *Manager) upload(ctx context.Context, client s3Client, key string) (int64, error) {
	dir, err := os.MkdirTemp("", "memberqr-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	encrypted := snapshot + ".enc"

	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}
	if err := EncryptFile(snapshot, encrypted, m.cfg.Passphrase); err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	f, err := os.Open(encrypted)
	if err != nil {
		return 0, fmt.Errorf("open encrypted file: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat encrypted file: %w", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return stat.Size(), nil
}

func (m *Manager) fail(ctx context.Context, id int64, err error) {
	m.logger.Error("backup failed", "backup_id", id, "error", err)
	if id != 0 {
		if uerr := m.backups.UpdateStatus(ctx, id, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("mark backup failed", "backup_id", id, "error", uerr)
		}
	}
	m.mu.RLock()
	last := m.status.LastBackup
	m.mu.RUnlock()
	m.setStatus(Status{State: StateError, Error: err.Error(), LastBackup: last})
}

// Download streams a completed backup's encrypted object.
func (m *Manager) Download(ctx context.Context, id int64) (io.ReadCloser, *model.Backup, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return nil, nil, ErrDisabled
	}

	record, err := m.backups.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		return nil, nil, ErrNotFound
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download from s3: %w", err)
	}
	return out.Body, record, nil
}

// List returns recent backup records.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.backups.List(ctx, limit)
}
