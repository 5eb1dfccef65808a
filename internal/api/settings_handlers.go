package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/prefhubapp/prefhub-server/internal/domain"
	domainerrors "github.com/prefhubapp/prefhub-server/internal/errors"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Get settings",
		Description: "Gets the current settings record",
		Tags:        []string{"Settings"},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSettings",
		Method:      http.MethodPatch,
		Path:        "/api/v1/settings",
		Summary:     "Update settings",
		Description: "Applies a partial update to the settings record and broadcasts the result",
		Tags:        []string{"Settings"},
	}, s.handleUpdateSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetSettings",
		Method:      http.MethodPost,
		Path:        "/api/v1/settings/reset",
		Summary:     "Reset settings",
		Description: "Resets the settings record to defaults and broadcasts the result",
		Tags:        []string{"Settings"},
	}, s.handleResetSettings)
}

// === DTOs ===

// SettingsResponse is the API representation of the settings record.
type SettingsResponse struct {
	Theme                string    `json:"theme" doc:"UI theme: light, dark, or system"`
	Language             string    `json:"language" doc:"BCP 47 language tag"`
	NotificationsEnabled bool      `json:"notifications_enabled" doc:"Whether notifications are enabled"`
	PollIntervalSec      int       `json:"poll_interval_sec" doc:"Client poll interval in seconds"`
	UpdatedAt            time.Time `json:"updated_at" doc:"Time of the last change"`
}

// GetSettingsOutput is the Huma output wrapper for getting settings.
type GetSettingsOutput struct {
	Body SettingsResponse
}

// UpdateSettingsRequest is the request body for partial settings updates.
// Omitted fields keep their current value.
type UpdateSettingsRequest struct {
	Theme                *string `json:"theme,omitempty" enum:"light,dark,system" doc:"UI theme"`
	Language             *string `json:"language,omitempty" doc:"BCP 47 language tag"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty" doc:"Enable or disable notifications"`
	PollIntervalSec      *int    `json:"poll_interval_sec,omitempty" minimum:"5" maximum:"3600" doc:"Client poll interval in seconds"`
}

// UpdateSettingsInput is the Huma input for updating settings.
type UpdateSettingsInput struct {
	Body UpdateSettingsRequest
}

// UpdateSettingsOutput is the Huma output wrapper for updating settings.
type UpdateSettingsOutput struct {
	Body SettingsResponse
}

// ResetSettingsOutput is the Huma output wrapper for resetting settings.
type ResetSettingsOutput struct {
	Body SettingsResponse
}

// === Handlers ===

func (s *Server) handleGetSettings(_ context.Context, _ *struct{}) (*GetSettingsOutput, error) {
	return &GetSettingsOutput{
		Body: toSettingsResponse(s.settings.Current()),
	}, nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*UpdateSettingsOutput, error) {
	updated, err := s.settings.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
		next := current

		if input.Body.Theme != nil {
			next.Theme = domain.Theme(*input.Body.Theme)
		}
		if input.Body.Language != nil {
			next.Language = *input.Body.Language
		}
		if input.Body.NotificationsEnabled != nil {
			next.NotificationsEnabled = *input.Body.NotificationsEnabled
		}
		if input.Body.PollIntervalSec != nil {
			next.PollIntervalSec = *input.Body.PollIntervalSec
		}

		if err := s.validate.Validate(next); err != nil {
			return domain.Settings{}, err
		}

		return next.Touch(), nil
	})
	if err != nil {
		return nil, s.mapError("failed to update settings", err)
	}

	s.logger.Info("settings updated",
		"theme", updated.Theme,
		"language", updated.Language,
		"poll_interval_sec", updated.PollIntervalSec,
	)

	return &UpdateSettingsOutput{Body: toSettingsResponse(updated)}, nil
}

func (s *Server) handleResetSettings(ctx context.Context, _ *struct{}) (*ResetSettingsOutput, error) {
	updated, err := s.settings.Save(ctx, func(domain.Settings) (domain.Settings, error) {
		return domain.NewSettings(), nil
	})
	if err != nil {
		return nil, s.mapError("failed to reset settings", err)
	}

	s.logger.Info("settings reset to defaults")

	return &ResetSettingsOutput{Body: toSettingsResponse(updated)}, nil
}

// === Helpers ===

func toSettingsResponse(s domain.Settings) SettingsResponse {
	return SettingsResponse{
		Theme:                string(s.Theme),
		Language:             s.Language,
		NotificationsEnabled: s.NotificationsEnabled,
		PollIntervalSec:      s.PollIntervalSec,
		UpdatedAt:            s.UpdatedAt,
	}
}

// mapError converts domain errors to Huma status errors.
func (s *Server) mapError(msg string, err error) error {
	var domainErr *domainerrors.Error
	if domainerrors.As(err, &domainErr) {
		switch domainErr.Code.HTTPStatus() {
		case http.StatusBadRequest:
			return huma.Error422UnprocessableEntity(domainErr.Message, err)
		case http.StatusNotFound:
			return huma.Error404NotFound(domainErr.Message, err)
		case http.StatusConflict:
			return huma.Error409Conflict(domainErr.Message, err)
		}
	}

	s.logger.Error(msg, "error", err)
	return huma.Error500InternalServerError(msg, err)
}
