package domain

import (
	"time"

	"gorm.io/datatypes"
)

// FlagType selects the evaluation strategy for a feature flag.
type FlagType string

const (
	FlagTypeBoolean     FlagType = "boolean"
	FlagTypePercentage  FlagType = "percentage"
	FlagTypeUserSegment FlagType = "user_segment"
	FlagTypeTimeBased   FlagType = "time_based"
)

// FeatureFlag is the persisted flag record, the source of truth for
// listing and introspection. The in-memory registry keeps its own copy
// of the value for evaluation; see registry.FlagRegistry.
type FeatureFlag struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Name         string         `gorm:"uniqueIndex;size:128;not null" json:"name"`
	FlagType     FlagType       `gorm:"size:32;not null;index" json:"flag_type"`
	Value        datatypes.JSON `json:"value"`
	Description  string         `gorm:"size:512" json:"description"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	IsSystem     bool           `gorm:"not null;default:false" json:"is_system"`
	Requirements datatypes.JSON `json:"requirements,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// EvaluationContext carries per-call data consumed by non-boolean flag
// evaluation. All fields are optional; evaluators fail closed when the
// data they need is absent.
type EvaluationContext struct {
	UserID       string   `json:"user_id,omitempty"`
	UserGroups   []string `json:"user_groups,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"`
	IsBetaTester bool     `json:"is_beta_tester,omitempty"`
	RequestPath  string   `json:"request_path,omitempty"`
	ClientIP     string   `json:"client_ip,omitempty"`
}
