package models

import "time"

// Program represents a program-of-work (proker) owned by a division.
type Program struct {
	ID          int64     `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Division    string    `db:"division" json:"division"`
	Period      string    `db:"period" json:"period"`
	LeadUserID  string    `db:"lead_user_id" json:"lead_user_id"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProgramFilter captures filtering criteria for listing programs.
type ProgramFilter struct {
	Division string
	Period   string
	Search   string
	Page     int
	PageSize int
}
