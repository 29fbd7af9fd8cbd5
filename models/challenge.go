package models

import "time"

// Challenge is read-only to this service; CRUD lives elsewhere.
type Challenge struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Category   string    `gorm:"size:50;index" json:"category"`
	BasePoints int       `gorm:"not null;default:100" json:"base_points"`
	WaveID     *uint     `gorm:"index" json:"wave_id"`
	Visible    bool      `gorm:"not null;default:true" json:"visible"`
	CreatedAt  time.Time `json:"created_at"`
}
