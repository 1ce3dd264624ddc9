package models

import (
	"time"
)

// Recipe is one published recipe of the site. The agent's recipe tools
// read these; the agent never writes them.
type Recipe struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Tags        []string  `json:"tags" db:"tags"`
	Markdown    string    `json:"markdown" db:"markdown"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
