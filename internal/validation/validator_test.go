package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prefhubapp/prefhub-server/internal/domain"
	domainerrors "github.com/prefhubapp/prefhub-server/internal/errors"
	"github.com/prefhubapp/prefhub-server/internal/validation"
)

func TestValidator_ValidSettings(t *testing.T) {
	v := validation.New()

	settings := domain.NewSettings()
	assert.NoError(t, v.Validate(settings))

	settings.Theme = domain.ThemeDark
	settings.Language = "de-AT"
	settings.PollIntervalSec = 3600
	assert.NoError(t, v.Validate(settings))
}

func TestValidator_InvalidTheme(t *testing.T) {
	v := validation.New()

	settings := domain.NewSettings()
	settings.Theme = "neon"

	err := v.Validate(settings)
	require.Error(t, err)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)

	// Field errors use JSON tag names with friendly messages.
	assert.Contains(t, domainErr.Details["theme"], "must be one of")
}

func TestValidator_InvalidLanguage(t *testing.T) {
	v := validation.New()

	settings := domain.NewSettings()
	settings.Language = "not a language tag"

	err := v.Validate(settings)
	require.Error(t, err)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Contains(t, domainErr.Details["language"], "BCP 47")
}

func TestValidator_PollIntervalBounds(t *testing.T) {
	v := validation.New()

	settings := domain.NewSettings()
	settings.PollIntervalSec = 4
	assert.Error(t, v.Validate(settings))

	settings.PollIntervalSec = 5
	assert.NoError(t, v.Validate(settings))

	settings.PollIntervalSec = 3601
	assert.Error(t, v.Validate(settings))
}
