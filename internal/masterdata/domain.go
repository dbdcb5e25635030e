// Package masterdata manages branches and asset categories.
package masterdata

import (
	"errors"
	"time"
)

// Branch is one custody location.
type Branch struct {
	ID        int64
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category classifies assets and keys their approval pipelines. A zero
// DepreciationMonths disables end-of-life alerts for the category.
type Category struct {
	ID                 int64
	Name               string
	DepreciationMonths int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ErrNameTaken indicates a duplicate branch or category name.
var ErrNameTaken = errors.New("masterdata: name already in use")
