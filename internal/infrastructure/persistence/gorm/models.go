// Package gorm provides GORM model definitions and repository
// implementations for conversation and recipe persistence.
package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TurnModel is one row of a session's append-only conversation log.
type TurnModel struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey"`
	SessionID      string    `gorm:"type:varchar(255);not null;index"`
	Role           string    `gorm:"type:varchar(20);not null"`
	Text           string    `gorm:"type:text"`
	DetectedIntent string    `gorm:"type:varchar(50)"`
	ReferencedIDs  StringSlice `gorm:"type:json"`
	// Snapshots holds the full recipe payloads surfaced by this turn.
	Snapshots JSONDocument `gorm:"type:json"`
	CreatedAt time.Time    `gorm:"index"`
}

func (TurnModel) TableName() string {
	return "conversation_turns"
}

// RecipeModel stores locally-created recipes, including AI-adapted ones.
// IDs are strings rather than UUIDs because adapted recipes carry synthetic
// session-scoped identifiers.
type RecipeModel struct {
	ID          string `gorm:"type:varchar(255);primaryKey"`
	Name        string `gorm:"type:varchar(255);not null;index"`
	Description string `gorm:"type:text"`
	Servings    int    `gorm:"default:1"`

	Ingredients JSONDocument `gorm:"type:json"`
	Steps       JSONDocument `gorm:"type:json"`
	Nutrition   JSONDocument `gorm:"type:json"`
	Tags        StringSlice  `gorm:"type:json"`

	AIGenerated    bool   `gorm:"default:false"`
	SourceRecipeID string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RecipeModel) TableName() string {
	return "recipes"
}

// StringSlice stores a string slice as a JSON column.
type StringSlice []string

// Scan implements the sql.Scanner interface
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
}

// Value implements the driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

// JSONDocument stores an arbitrary JSON payload as a column.
type JSONDocument json.RawMessage

// Scan implements the sql.Scanner interface
func (j *JSONDocument) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = JSONDocument(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into JSONDocument", value)
	}
}

// Value implements the driver.Valuer interface
func (j JSONDocument) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

// BeforeCreate hook for TurnModel
func (t *TurnModel) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
