package ports

import (
	"context"

	"github.com/taskmaster/taskflow/internal/domain/entities"
)

// Permission is the host's answer to "may we show native notifications".
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Notifier is the host-provided native notification capability.
type Notifier interface {
	PermissionState() Permission
	// RequestPermission resolves exactly once on the returned channel.
	RequestPermission(ctx context.Context) <-chan Permission
	Notify(ctx context.Context, title, body, tag string) error
}

// BannerIcon selects the glyph shown next to an in-app banner.
type BannerIcon string

const (
	BannerIconBell  BannerIcon = "bell"
	BannerIconClock BannerIcon = "clock"
	BannerIconInfo  BannerIcon = "info"
)

// BannerPresenter is the in-app fallback used when native notifications are
// unavailable. At most one banner is visible at a time.
type BannerPresenter interface {
	Show(message string, icon BannerIcon)
	Dismiss()
}

// Request/Response Types

type CreateTaskRequest struct {
	Description   string              `json:"description" validate:"required"`
	Priority      entities.Priority   `json:"priority" validate:"omitempty,oneof=normal important"`
	StartDateTime *entities.Timestamp `json:"startDateTime"`
	EndDateTime   *entities.Timestamp `json:"endDateTime"`
}

// UpdateTaskRequest is a partial update; nil fields are left unchanged.
// DueDate is the legacy alias of EndDateTime and sets both.
type UpdateTaskRequest struct {
	Description   *string             `json:"description"`
	Priority      *entities.Priority  `json:"priority" validate:"omitempty,oneof=normal important"`
	StartDateTime *entities.Timestamp `json:"startDateTime"`
	EndDateTime   *entities.Timestamp `json:"endDateTime"`
	DueDate       *entities.Timestamp `json:"dueDate"`
	ClearStart    bool                `json:"clearStart"`
	ClearEnd      bool                `json:"clearEnd"`
}

// Empty reports whether the update changes nothing.
func (r UpdateTaskRequest) Empty() bool {
	return r.Description == nil && r.Priority == nil && r.StartDateTime == nil &&
		r.EndDateTime == nil && r.DueDate == nil && !r.ClearStart && !r.ClearEnd
}

type ClearCompletedResponse struct {
	Cleared int    `json:"cleared"`
	Message string `json:"message"`
}

type BannerResponse struct {
	Message   string     `json:"message"`
	Icon      BannerIcon `json:"icon"`
	ShownAt   string     `json:"shownAt"`
	ExpiresAt string     `json:"expiresAt"`
}
