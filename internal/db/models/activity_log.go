// Package models - activity_log.go defines the append-only ActivityLog record
// and its JSONB metadata column type.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityLog records an authentication event or admin mutation.
type ActivityLog struct {
	ID          string    `db:"id" json:"id"`
	ActorUserID *string   `db:"actor_user_id" json:"actor_user_id"` // nil when the actor is unknown
	Action      string    `db:"action" json:"action"`               // "Login Success", "Login Failed", "Logout", ...
	EntityType  string    `db:"entity_type" json:"entity_type"`     // "admin_user", "session", ...
	EntityID    *string   `db:"entity_id" json:"entity_id"`
	Metadata    Metadata  `db:"metadata" json:"metadata,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Metadata is a free-form JSON object stored in a JSONB column.
type Metadata map[string]interface{}

// Value implements driver.Valuer. A nil map is stored as SQL NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	*m = out
	return nil
}
