package cli

import (
	"encoding/json"
	"strings"
	"testing"

	internalApp "github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/internal/billing/application"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inMemoryApp(t *testing.T) *App {
	t.Helper()
	container := internalApp.NewInMemoryContainer(nil, nil)
	t.Cleanup(container.Close)
	return FromContainer(container, "")
}

func TestRequireEntitlements(t *testing.T) {
	SetApp(nil)
	_, err := RequireEntitlements()
	assert.ErrorIs(t, err, ErrAppNotInitialized)

	SetApp(inMemoryApp(t))
	defer SetApp(nil)
	a, err := RequireEntitlements()
	require.NoError(t, err)
	assert.NotNil(t, a.Entitlements)
}

func TestRequireAdmin(t *testing.T) {
	SetApp(nil)
	_, err := RequireAdmin()
	assert.ErrorIs(t, err, ErrAppNotInitialized)

	failOpen := NewApp(application.NewFailOpenService(domain.DefaultLimits(), nil, nil), nil, nil, nil, nil)
	SetApp(failOpen)
	defer SetApp(nil)
	_, err = RequireAdmin()
	assert.ErrorIs(t, err, ErrAdminUnavailable)

	SetApp(inMemoryApp(t))
	a, err := RequireAdmin()
	require.NoError(t, err)
	assert.True(t, a.HasAdmin())
}

func TestSubjectUser(t *testing.T) {
	a := &App{}

	_, err := SubjectUser(a, "  ")
	assert.Error(t, err)

	user, err := SubjectUser(a, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user)

	a.SetCurrentUserID("operator")
	user, err = SubjectUser(a, "")
	require.NoError(t, err)
	assert.Equal(t, "operator", user)
}

func TestHealthCmd(t *testing.T) {
	SetApp(nil)
	assert.Error(t, healthCmd.RunE(healthCmd, nil))

	SetApp(inMemoryApp(t))
	defer SetApp(nil)

	var output strings.Builder
	healthCmd.SetOut(&output)
	require.NoError(t, healthCmd.RunE(healthCmd, nil))
	assert.Contains(t, output.String(), "ok")
	assert.Contains(t, output.String(), "store-backed")
}

func TestHealthCmd_FailOpen(t *testing.T) {
	SetApp(NewApp(application.NewFailOpenService(domain.DefaultLimits(), nil, nil), nil, nil, nil, nil))
	defer SetApp(nil)

	var output strings.Builder
	healthCmd.SetOut(&output)
	require.NoError(t, healthCmd.RunE(healthCmd, nil))
	assert.Contains(t, output.String(), "fail-open")
}

func TestHealthCmd_JSON(t *testing.T) {
	a := inMemoryApp(t)
	a.SetCurrentUserID("operator")
	SetApp(a)
	defer SetApp(nil)

	healthJSON = true
	defer func() { healthJSON = false }()

	var output strings.Builder
	healthCmd.SetOut(&output)
	require.NoError(t, healthCmd.RunE(healthCmd, nil))

	var report healthReport
	require.NoError(t, json.Unmarshal([]byte(output.String()), &report))
	assert.True(t, report.Admin)
	assert.Equal(t, "store-backed", report.Entitlements)
	assert.Equal(t, "operator", report.DefaultUser)
}

func TestVersionCmd(t *testing.T) {
	var output strings.Builder
	versionCmd.SetOut(&output)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, output.String(), "cosmiq dev")
	assert.Contains(t, output.String(), "go:")

	shortVersion = true
	defer func() { shortVersion = false }()
	output.Reset()
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "dev\n", output.String())
}

func TestFromContainer(t *testing.T) {
	container := internalApp.NewInMemoryContainer(nil, nil)
	defer container.Close()

	a := FromContainer(container, "operator")
	assert.Equal(t, "operator", a.CurrentUserID)
	assert.True(t, a.HasAdmin())
	assert.Same(t, container.GrantCreditsHandler, a.GrantCreditsHandler)
}
