// Package sqlstore keeps run history in SQLite through gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-graph/internal/jobs"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RunJobRecord is the persisted form of a jobs.RunJob.
type RunJobRecord struct {
	JobID       string `gorm:"primaryKey"`
	SourceURI   string `gorm:"index"`
	Status      string `gorm:"index"`
	RunStatus   string
	Processed   int
	Failed      int
	Cancelled   int
	Error       string
	RetryCount  int
	MaxRetries  int
	CreatedAt   time.Time `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	Failures    []ItemFailureRecord `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
}

// ItemFailureRecord stores one failed transaction of a run.
type ItemFailureRecord struct {
	ID            uint   `gorm:"primaryKey"`
	JobID         string `gorm:"index"`
	TransactionID string
	Stage         string
	Reason        string
}

// Store is a jobs.Store on gorm. SQLite serializes writers, so the pool is
// limited to one connection.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at dsn and migrates it.
// Use ":memory:" for a throwaway store.
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  &gormLogger{Logger: log},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore.Open: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlstore.Open: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&RunJobRecord{}, &ItemFailureRecord{}); err != nil {
		return nil, fmt.Errorf("sqlstore.Open: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(job *jobs.RunJob) RunJobRecord {
	rec := RunJobRecord{
		JobID:       job.JobID,
		SourceURI:   job.SourceURI,
		Status:      string(job.Status),
		RunStatus:   job.RunStatus,
		Processed:   job.Processed,
		Failed:      job.Failed,
		Cancelled:   job.Cancelled,
		Error:       job.Error,
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	for _, f := range job.Failures {
		rec.Failures = append(rec.Failures, ItemFailureRecord{
			JobID:         job.JobID,
			TransactionID: f.TransactionID,
			Stage:         f.Stage,
			Reason:        f.Reason,
		})
	}
	return rec
}

func fromRecord(rec RunJobRecord) *jobs.RunJob {
	job := &jobs.RunJob{
		JobID:       rec.JobID,
		SourceURI:   rec.SourceURI,
		Status:      jobs.JobStatus(rec.Status),
		RunStatus:   rec.RunStatus,
		Processed:   rec.Processed,
		Failed:      rec.Failed,
		Cancelled:   rec.Cancelled,
		Error:       rec.Error,
		RetryCount:  rec.RetryCount,
		MaxRetries:  rec.MaxRetries,
		CreatedAt:   rec.CreatedAt.UTC(),
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
	for _, f := range rec.Failures {
		job.Failures = append(job.Failures, jobs.ItemFailure{
			TransactionID: f.TransactionID,
			Stage:         f.Stage,
			Reason:        f.Reason,
		})
	}
	return job
}

// SaveJob implements jobs.Store. The job's failure list replaces the stored one.
func (s *Store) SaveJob(ctx context.Context, job *jobs.RunJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	rec := toRecord(job)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", job.JobID).Delete(&ItemFailureRecord{}).Error; err != nil {
			return fmt.Errorf("SaveJob: clear failures: %w", err)
		}
		if err := tx.Omit("Failures").Save(&rec).Error; err != nil {
			return fmt.Errorf("SaveJob: %w", err)
		}
		if len(rec.Failures) > 0 {
			if err := tx.Create(&rec.Failures).Error; err != nil {
				return fmt.Errorf("SaveJob: failures: %w", err)
			}
		}
		return nil
	})
}

// GetJob implements jobs.Store.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.RunJob, error) {
	var rec RunJobRecord
	err := s.db.WithContext(ctx).Preload("Failures", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).First(&rec, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob: %w", err)
	}
	return fromRecord(rec), nil
}

// ListJobs implements jobs.Store. Failure details are not loaded.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.RunJob, error) {
	q := s.db.WithContext(ctx).Model(&RunJobRecord{}).Order("created_at DESC").Order("job_id")
	if filter.SourceURI != "" {
		q = q.Where("source_uri = ?", filter.SourceURI)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var recs []RunJobRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("ListJobs: %w", err)
	}
	out := make([]*jobs.RunJob, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// UpdateJobStatus implements jobs.Store.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	updates := map[string]any{"status": string(status)}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	res := s.db.WithContext(ctx).Model(&RunJobRecord{}).Where("job_id = ?", jobID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("UpdateJobStatus: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return nil
}

var _ jobs.Store = (*Store)(nil)
