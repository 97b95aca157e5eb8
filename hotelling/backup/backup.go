// Package backup persists session snapshots. The snapshot is stored as one
// JSON blob; the row columns only exist for listing.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hotelling/models"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Summary describes one stored snapshot without its blob.
type Summary struct {
	ID        uint         `json:"id"`
	SessionID string       `json:"session_id"`
	Turn      int          `json:"turn"`
	Phase     models.Phase `json:"phase"`
	CreatedAt time.Time    `json:"created_at"`
}

type Repository interface {
	Save(ctx context.Context, sessionID string, snap models.SessionSnapshot) (Summary, error)
	Load(ctx context.Context, id uint) (models.SessionSnapshot, error)
	Latest(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
	List(ctx context.Context, limit int) ([]Summary, error)
}

func Encode(snap models.SessionSnapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func Decode(b []byte) (models.SessionSnapshot, error) {
	var snap models.SessionSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// GormRepository stores snapshots in PostgreSQL.
type GormRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormRepository(db *gorm.DB, logger *zap.Logger) *GormRepository {
	return &GormRepository{db: db, logger: logger.With(zap.String("component", "backup"))}
}

func (r *GormRepository) Save(ctx context.Context, sessionID string, snap models.SessionSnapshot) (Summary, error) {
	blob, err := Encode(snap)
	if err != nil {
		return Summary{}, err
	}
	row := models.SessionBackup{
		SessionID: sessionID,
		Turn:      snap.TurnCounter,
		Phase:     string(snap.Phase),
		Blob:      blob,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		r.logger.Error("スナップショットの保存に失敗しました", zap.String("session_id", sessionID), zap.Error(err))
		return Summary{}, err
	}
	return summarize(row), nil
}

func (r *GormRepository) Load(ctx context.Context, id uint) (models.SessionSnapshot, error) {
	var row models.SessionBackup
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SessionSnapshot{}, ErrNotFound
		}
		return models.SessionSnapshot{}, err
	}
	return Decode(row.Blob)
}

func (r *GormRepository) Latest(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	var row models.SessionBackup
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SessionSnapshot{}, ErrNotFound
	}
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return Decode(row.Blob)
}

func (r *GormRepository) List(ctx context.Context, limit int) ([]Summary, error) {
	var rows []models.SessionBackup
	err := r.db.WithContext(ctx).
		Select("id", "created_at", "session_id", "turn", "phase").
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(rows))
	for i, row := range rows {
		out[i] = summarize(row)
	}
	return out, nil
}

func summarize(row models.SessionBackup) Summary {
	return Summary{
		ID:        row.ID,
		SessionID: row.SessionID,
		Turn:      row.Turn,
		Phase:     models.Phase(row.Phase),
		CreatedAt: row.CreatedAt,
	}
}

// MemoryRepository keeps snapshots in process. It is used when no
// database is configured and in tests.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.SessionBackup
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

func (m *MemoryRepository) Save(_ context.Context, sessionID string, snap models.SessionSnapshot) (Summary, error) {
	blob, err := Encode(snap)
	if err != nil {
		return Summary{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row := models.SessionBackup{
		SessionID: sessionID,
		Turn:      snap.TurnCounter,
		Phase:     string(snap.Phase),
		Blob:      blob,
	}
	row.ID = m.nextID
	row.CreatedAt = time.Now()
	m.nextID++
	m.rows = append(m.rows, row)
	return summarize(row), nil
}

func (m *MemoryRepository) Load(_ context.Context, id uint) (models.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			return Decode(row.Blob)
		}
	}
	return models.SessionSnapshot{}, ErrNotFound
}

func (m *MemoryRepository) Latest(_ context.Context, sessionID string) (models.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].SessionID == sessionID {
			return Decode(m.rows[i].Blob)
		}
	}
	return models.SessionSnapshot{}, ErrNotFound
}

func (m *MemoryRepository) List(_ context.Context, limit int) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, summarize(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
