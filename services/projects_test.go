package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"widgethub/models"
	"widgethub/utils"
	"widgethub/utils/testdb"
)

func newProjects(t *testing.T, key string) (*ProjectService, *gorm.DB) {
	t.Helper()
	db := testdb.New(t)
	var cipher *utils.SecretCipher
	if key != "" {
		var err error
		cipher, err = utils.NewSecretCipher(key)
		require.NoError(t, err)
	}
	return NewProjectService(db, cipher, NewAccessControl(db)), db
}

func TestCreateProjectAddsCreator(t *testing.T) {
	svc, db := newProjects(t, "")
	ctx := context.Background()
	owner := testdb.User(t, db, "owner@example.com", models.RoleMarketing)
	outsider := testdb.User(t, db, "out@example.com", models.RoleViewer)

	p, err := svc.CreateProject(ctx, owner.ID, ProjectInput{Name: "  Shop  "})
	require.NoError(t, err)
	assert.Equal(t, "Shop", p.Name)
	assert.Equal(t, "UTC", p.Timezone)

	members, err := svc.ListMembers(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, owner.ID, members[0].ID)

	visible, err := svc.ListProjects(ctx, owner)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	visible, err = svc.ListProjects(ctx, outsider)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestProjectValidation(t *testing.T) {
	svc, _ := newProjects(t, "")
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, 0, ProjectInput{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.CreateProject(ctx, 0, ProjectInput{Name: "x", Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.CreateProject(ctx, 0, ProjectInput{Name: "x", WebhookURL: utils.Pointer("ftp://example.com")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// a secret cannot be stored without an encryption key
	_, err = svc.CreateProject(ctx, 0, ProjectInput{Name: "x", WebhookSecret: utils.Pointer("s")})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWebhookSecretIsEncrypted(t *testing.T) {
	svc, db := newProjects(t, "0123456789abcdef0123456789abcdef")
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, 0, ProjectInput{
		Name:          "Shop",
		WebhookURL:    utils.Pointer("https://hooks.example.com/widget"),
		WebhookSecret: utils.Pointer("signing-key"),
	})
	require.NoError(t, err)

	var stored models.Project
	require.NoError(t, db.First(&stored, p.ID).Error)
	require.NotNil(t, stored.WebhookSecret)
	assert.NotEqual(t, "signing-key", *stored.WebhookSecret)

	endpoint, secret, err := svc.WebhookTarget(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/widget", endpoint)
	assert.Equal(t, "signing-key", secret)

	// nil keeps, empty clears
	_, err = svc.UpdateProject(ctx, p.ID, ProjectInput{Name: "Shop 2", WebhookURL: stored.WebhookURL})
	require.NoError(t, err)
	_, secret, err = svc.WebhookTarget(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "signing-key", secret)

	_, err = svc.UpdateProject(ctx, p.ID, ProjectInput{Name: "Shop 2", WebhookURL: stored.WebhookURL, WebhookSecret: utils.Pointer("")})
	require.NoError(t, err)
	_, secret, err = svc.WebhookTarget(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, secret)
}

func TestWebhookTargetWithoutWebhook(t *testing.T) {
	svc, db := newProjects(t, "")
	p := testdb.Project(t, db, "UTC")
	endpoint, secret, err := svc.WebhookTarget(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, endpoint)
	assert.Empty(t, secret)
}

func TestMembers(t *testing.T) {
	svc, db := newProjects(t, "")
	ctx := context.Background()
	p := testdb.Project(t, db, "UTC")
	u := testdb.User(t, db, "u@example.com", models.RoleViewer)

	require.NoError(t, svc.AddMember(ctx, p.ID, u.ID))
	require.NoError(t, svc.AddMember(ctx, p.ID, u.ID))
	members, err := svc.ListMembers(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	assert.ErrorIs(t, svc.AddMember(ctx, p.ID, 999), ErrNotFound)
	assert.ErrorIs(t, svc.AddMember(ctx, 999, u.ID), ErrNotFound)

	require.NoError(t, svc.RemoveMember(ctx, p.ID, u.ID))
	assert.ErrorIs(t, svc.RemoveMember(ctx, p.ID, u.ID), ErrNotFound)
}

func TestUpsertSchedule(t *testing.T) {
	svc, db := newProjects(t, "")
	ctx := context.Background()
	p := testdb.Project(t, db, "UTC")

	row, err := svc.UpsertSchedule(ctx, p.ID, ScheduleInput{Day: models.Friday, StartTime: "9:00", EndTime: "17:00", IsWorkingDay: true})
	require.NoError(t, err)
	assert.Equal(t, "09:00", row.StartTime)

	row, err = svc.UpsertSchedule(ctx, p.ID, ScheduleInput{Day: models.Friday, StartTime: "10:00", EndTime: "15:30"})
	require.NoError(t, err)
	assert.Equal(t, "10:00", row.StartTime)
	assert.Equal(t, "15:30", row.EndTime)
	assert.False(t, row.IsWorkingDay)

	_, err = svc.UpsertSchedule(ctx, p.ID, ScheduleInput{Day: models.Monday, StartTime: "08:00", EndTime: "12:00", IsWorkingDay: true})
	require.NoError(t, err)

	rows, err := svc.ListSchedules(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.Monday, rows[0].Day)
	assert.Equal(t, models.Friday, rows[1].Day)

	_, err = svc.UpsertSchedule(ctx, p.ID, ScheduleInput{Day: "funday", StartTime: "08:00", EndTime: "12:00"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.UpsertSchedule(ctx, p.ID, ScheduleInput{Day: models.Monday, StartTime: "25:00", EndTime: "12:00"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	require.NoError(t, svc.DeleteSchedule(ctx, p.ID, models.Friday))
	assert.ErrorIs(t, svc.DeleteSchedule(ctx, p.ID, models.Friday), ErrNotFound)
}
