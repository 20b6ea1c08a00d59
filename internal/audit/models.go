// Package audit records the contract transactions this service submits.
package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record is one submitted contract call
type Record struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Kind            string         `json:"kind" gorm:"not null;index"`
	ContractAddress string         `json:"contract_address" gorm:"not null"`
	FunctionName    string         `json:"function_name" gorm:"index"`
	Message         datatypes.JSON `json:"message" gorm:"type:jsonb"`
	Success         bool           `json:"success"`
	TxHash          string         `json:"tx_hash,omitempty" gorm:"index"`
	Code            int64          `json:"code"`
	Error           string         `json:"error,omitempty"`
	DurationMs      int64          `json:"duration_ms"`
	CreatedAt       time.Time      `json:"created_at" gorm:"index"`
}

// TableName sets the table name
func (Record) TableName() string {
	return "chain_transactions"
}

// BeforeCreate hook for UUID generation
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Kind         string
	FunctionName string
	Success      *bool
	Limit        int
}

// matches is the in-memory equivalent of the SQL filter
func (f Filter) matches(r *Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.FunctionName != "" && r.FunctionName != f.FunctionName {
		return false
	}
	if f.Success != nil && r.Success != *f.Success {
		return false
	}
	return true
}
