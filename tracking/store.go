// Package tracking persists completed calls so usage and spend can be
// queried per session after the fact. Only envelopes carrying metrics are
// recorded, which is exactly one per successful call.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/llmgate/llmgate/llm"
)

type CallRecord struct {
	ID         uint   `gorm:"primaryKey"`
	EnvelopeID string `gorm:"index"`
	SessionID  string `gorm:"index"`
	Provider   string `gorm:"index"`
	Model      string
	Deployment string

	InputTokens        int
	OutputTokens       int
	TotalTokens        int
	CostUSD            float64
	LatencyS           float64
	TimeToFirstTokenS  float64
	InterTokenLatencyS float64
	TokensPerSecond    float64

	ChatInput  string
	ChatOutput string

	CreatedAt time.Time
}

type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open creates or migrates the SQLite store. Use ":memory:" in tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open tracking store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&CallRecord{}); err != nil {
		return nil, fmt.Errorf("migrate tracking store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record stores the metrics-bearing envelope of a completed call.
func (s *Store) Record(ctx context.Context, sessionID string, env *llm.Envelope) error {
	if env == nil || env.Metrics == nil {
		return fmt.Errorf("tracking: envelope has no metrics")
	}

	rec := CallRecord{
		EnvelopeID:   env.ID,
		SessionID:    sessionID,
		Provider:     env.Provider,
		Model:        env.Model,
		Deployment:   env.Deployment,
		InputTokens:  env.Metrics.InputTokens,
		OutputTokens: env.Metrics.OutputTokens,
		TotalTokens:  env.Metrics.TotalTokens,
		CostUSD:      env.Metrics.CostUSD,
		LatencyS:     env.Metrics.LatencyS,

		TokensPerSecond: env.Metrics.TokensPerSecond,
	}
	if env.Metrics.TimeToFirstTokenS != nil {
		rec.TimeToFirstTokenS = *env.Metrics.TimeToFirstTokenS
	}
	if env.Metrics.InterTokenLatencyS != nil {
		rec.InterTokenLatencyS = *env.Metrics.InterTokenLatencyS
	}
	if !env.ChatInput.IsParts() {
		rec.ChatInput = env.ChatInput.Text()
	}
	if env.ChatOutput != nil {
		rec.ChatOutput = *env.ChatOutput
	}

	return s.db.WithContext(ctx).Create(&rec).Error
}

// BySession returns a session's calls, oldest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]CallRecord, error) {
	var records []CallRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// SessionCost sums a session's spend in USD.
func (s *Store) SessionCost(ctx context.Context, sessionID string) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).
		Model(&CallRecord{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&total).Error
	return total, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
