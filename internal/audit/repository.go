package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var ErrNotFound = errors.New("transaction not found")

// Repository stores transaction records
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository stores records in the chain_transactions table
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Migrate creates or updates the chain_transactions table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (r *gormRepository) Create(ctx context.Context, record *Record) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var record Record
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := r.db.WithContext(ctx).Model(&Record{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.FunctionName != "" {
		query = query.Where("function_name = ?", filter.FunctionName)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}

	var records []Record
	err := query.Order("created_at DESC").Limit(clampLimit(filter.Limit)).Find(&records).Error
	return records, err
}

type memoryRepository struct {
	mu       sync.RWMutex
	records  []Record
	next     int
	full     bool
	capacity int
}

// NewMemoryRepository keeps the most recent capacity records in a ring
func NewMemoryRepository(capacity int) Repository {
	if capacity <= 0 {
		capacity = maxListLimit
	}
	return &memoryRepository{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

func (r *memoryRepository) Create(_ context.Context, record *Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[r.next] = *record
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < r.size(); i++ {
		if r.records[i].ID == id {
			record := r.records[i]
			return &record, nil
		}
	}
	return nil, ErrNotFound
}

// List returns matching records newest first
func (r *memoryRepository) List(_ context.Context, filter Filter) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := clampLimit(filter.Limit)
	out := make([]Record, 0, limit)
	for i := 1; i <= r.size() && len(out) < limit; i++ {
		idx := (r.next - i + r.capacity) % r.capacity
		if filter.matches(&r.records[idx]) {
			out = append(out, r.records[idx])
		}
	}
	return out, nil
}

func (r *memoryRepository) size() int {
	if r.full {
		return r.capacity
	}
	return r.next
}
