// Package domain holds the inbox transport inputs
package domain

// ListInput selects a page of recent captures
type ListInput struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=200"`
}

// GetInput names one capture
type GetInput struct {
	ID string `json:"id" validate:"required"`
}

// DeleteInput names one capture to remove along with its bucket record
type DeleteInput struct {
	ID string `json:"id" validate:"required"`
}
