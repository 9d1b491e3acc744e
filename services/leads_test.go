package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"widgethub/models"
	"widgethub/utils"
	"widgethub/utils/testdb"
)

func TestLeadListingAndProcessing(t *testing.T) {
	db := testdb.New(t)
	project := testdb.Project(t, db, "UTC")
	other := testdb.Project(t, db, "UTC")
	intake := NewIntake(db, nil, nil)
	leads := NewLeadService(db)
	ctx := context.Background()

	// a messenger channel is never adopted as the lead default
	form, err := NewDirectory(db).CreateChannel(ctx, project.ID, ChannelInput{Type: models.ChannelMessenger, Label: "Telegram", IsActive: true})
	require.NoError(t, err)

	var ids []uint
	for _, contact := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		lead, err := intake.SubmitLead(ctx, project.ID, LeadSubmission{Contact: contact})
		require.NoError(t, err)
		ids = append(ids, lead.ID)
	}
	onForm, err := intake.SubmitLead(ctx, project.ID, LeadSubmission{ChannelID: &form.ID, Contact: "d@example.com"})
	require.NoError(t, err)
	_, err = intake.SubmitLead(ctx, other.ID, LeadSubmission{Contact: "elsewhere@example.com"})
	require.NoError(t, err)

	all, total, err := leads.ListLeads(ctx, project.ID, LeadFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, onForm.ID, all[0].ID)

	byChannel, total, err := leads.ListLeads(ctx, project.ID, LeadFilter{ChannelID: &form.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, onForm.ID, byChannel[0].ID)

	updated, err := leads.SetLeadProcessed(ctx, project.ID, ids[0], true)
	require.NoError(t, err)
	assert.True(t, updated.Processed)

	pending, total, err := leads.ListLeads(ctx, project.ID, LeadFilter{Processed: utils.Pointer(false)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, l := range pending {
		assert.NotEqual(t, ids[0], l.ID)
	}

	page, total, err := leads.ListLeads(ctx, project.ID, LeadFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, page, 1)

	_, err = leads.GetLead(ctx, other.ID, ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = leads.SetLeadProcessed(ctx, other.ID, ids[0], false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCallbackProcessing(t *testing.T) {
	db := testdb.New(t)
	project := testdb.Project(t, db, "UTC")
	leads := NewLeadService(db)
	ctx := context.Background()

	cb, err := NewIntake(db, nil, nil).SubmitCallback(ctx, project.ID, CallbackSubmission{Phone: "+15550100"})
	require.NoError(t, err)

	list, total, err := leads.ListCallbacks(ctx, project.ID, LeadFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)

	updated, err := leads.SetCallbackProcessed(ctx, project.ID, cb.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Processed)

	updated, err = leads.SetCallbackProcessed(ctx, project.ID, cb.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Processed)

	_, err = leads.GetCallback(ctx, project.ID, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizePage(t *testing.T) {
	page, limit := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)

	page, limit = normalizePage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, limit)
}
