package models

import "time"

// ActiveContext is the dashboard-wide selection signal consumers read after
// a change notification.
type ActiveContext struct {
	ID        string    `json:"-" gorm:"primaryKey;column:id"`
	Database  string    `json:"database" gorm:"column:database_name;not null"`
	Schema    string    `json:"schema" gorm:"column:schema_name;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (ActiveContext) TableName() string {
	return "active_contexts"
}

func (a ActiveContext) Ref() SchemaRef {
	return SchemaRef{Database: a.Database, Schema: a.Schema}
}
