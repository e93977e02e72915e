package model

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyTagName = errors.New("tag name is empty")

// RGBA is a tag color with four channels in the 0..1 range
type RGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// RandomColor returns an opaque random color
func RandomColor() RGBA {
	return RGBA{R: rand.Float64(), G: rand.Float64(), B: rand.Float64(), A: 1}
}

// Clamp forces every channel into 0..1
func (c RGBA) Clamp() RGBA {
	return RGBA{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B), A: clamp01(c.A)}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Tag groups tasks under a colored label
type Tag struct {
	ID           string    `json:"id"`
	RemoteID     string    `json:"remote_id,omitempty"`
	OwnerID      string    `json:"owner_id,omitempty"`
	Name         string    `json:"name"`
	Color        RGBA      `json:"color"`
	Icon         string    `json:"icon,omitempty"`
	Synced       bool      `json:"synced"`
	Revision     int64     `json:"revision"`
	RemoteDigest string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewTag creates a new unsynced tag with a random color, created at now
func NewTag(ownerID, name, icon string, now time.Time) (Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, ErrEmptyTagName
	}
	return Tag{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Color:     RandomColor(),
		Icon:      icon,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkDirty records a local edit that still has to be uploaded
func (t *Tag) MarkDirty(now time.Time) {
	t.Synced = false
	t.Revision++
	t.UpdatedAt = now
}
