package queue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/uvci/resto/pkg/logger"
)

// FailedJobRecord is the row written for every job that exhausted its
// retries. The table is created by the failed_jobs migration.
type FailedJobRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	JobType  string    `gorm:"size:255;not null;index"`
	Payload  string    `gorm:"type:text;not null"`
	Error    string    `gorm:"type:text"`
	Attempts int       `gorm:"not null;default:0"`
	FailedAt time.Time `gorm:"autoCreateTime"`
}

func (FailedJobRecord) TableName() string { return "failed_jobs" }

func (m *Manager) persistFailed(ctx context.Context, f FailedJob) {
	m.mu.Lock()
	m.failed = append(m.failed, f)
	m.mu.Unlock()

	if m.db == nil {
		return
	}
	rec := FailedJobRecord{
		JobType:  f.JobType,
		Payload:  f.Payload,
		Error:    f.Err,
		Attempts: f.Attempts,
		FailedAt: f.FailedAt,
	}
	if err := m.db.WithContext(context.WithoutCancel(ctx)).Create(&rec).Error; err != nil {
		logger.Error("queue: persist failed job", "type", f.JobType, "error", err)
	}
}

// FailedJobs returns the failed jobs recorded by this process.
func (m *Manager) FailedJobs() []FailedJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FailedJob, len(m.failed))
	copy(out, m.failed)
	return out
}

// StoredFailedJobs reads the persisted failed jobs, newest first.
func StoredFailedJobs(ctx context.Context, db *gorm.DB, limit int) ([]FailedJob, error) {
	var rows []FailedJobRecord
	q := db.WithContext(ctx).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("queue: read failed jobs: %w", err)
	}
	out := make([]FailedJob, 0, len(rows))
	for _, r := range rows {
		out = append(out, FailedJob{JobType: r.JobType, Payload: r.Payload, Err: r.Error, Attempts: r.Attempts, FailedAt: r.FailedAt})
	}
	return out, nil
}
