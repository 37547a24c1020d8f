package server

import "castline/internal/domain"

type CreateCampaignRequest struct {
	UserID   string           `json:"user_id,omitempty" doc:"Target user; admins only, defaults to the caller"`
	Name     string           `json:"name"`
	Message  string           `json:"message"`
	MediaURL string           `json:"media_url,omitempty"`
	Groups   []string         `json:"groups"`
	Schedule domain.Schedule  `json:"schedule"`
	Config   domain.SendConfig `json:"config"`
}

type UpdateCampaignRequest struct {
	Name     *string            `json:"name,omitempty"`
	Message  *string            `json:"message,omitempty"`
	MediaURL *string            `json:"media_url,omitempty"`
	Groups   []string           `json:"groups,omitempty"`
	Schedule *domain.Schedule   `json:"schedule,omitempty"`
	Config   *domain.SendConfig `json:"config,omitempty"`
	Status   *string            `json:"status,omitempty" enum:"active,paused"`
}

type SetDepthRequest struct {
	Level int `json:"level" minimum:"1" maximum:"10"`
}

type CreateBoostRequest struct {
	DepthDelta int    `json:"depth_delta"`
	ExpiresAt  string `json:"expires_at" format:"date-time"`
}

type CapabilitiesResponse struct {
	UserID       string                   `json:"user_id"`
	Capabilities domain.CapabilityContext `json:"capabilities"`
}
