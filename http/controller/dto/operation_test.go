package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tnqbao/gau-site-director/entity"
)

func TestOperationResponseHidesMessagesFromUsers(t *testing.T) {
	now := time.Now()
	failed := false
	op := &entity.Operation{
		ID:          3,
		SiteID:      42,
		Site:        &entity.Site{ID: 42, Name: "alpha"},
		Type:        entity.OperationRegenNginxConfig,
		StartedTime: &now,
		Actions: []entity.Action{{
			ID:              9,
			Slug:            "update_appserver_nginx_config",
			StartedTime:     &now,
			Result:          &failed,
			Message:         "*fleet.ProtocolError: appserver 10.0.0.3 returned 500",
			UserRecoverable: true,
		}},
	}

	user := NewOperationResponse(op, false)
	admin := NewOperationResponse(op, true)

	assert.Equal(t, "failed", user.State)
	assert.True(t, user.UserCanClear)
	assert.Equal(t, "alpha", user.SiteName)
	assert.Empty(t, user.Actions[0].Message)
	assert.Equal(t, op.Actions[0].Message, admin.Actions[0].Message)
}

func TestOperationState(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "queued", OperationState(&entity.Operation{}))
	assert.Equal(t, "running", OperationState(&entity.Operation{StartedTime: &now}))
}
