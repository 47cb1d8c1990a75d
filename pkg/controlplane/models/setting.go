package models

import "time"

// Setting stores system-wide key-value settings.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// IntervalSettingPrefix prefixes keys holding scheduler intervals set at
// runtime, e.g. "interval.session-reaper".
const IntervalSettingPrefix = "interval."

// IntervalSettingKey returns the setting key for a task's interval.
func IntervalSettingKey(task string) string {
	return IntervalSettingPrefix + task
}
