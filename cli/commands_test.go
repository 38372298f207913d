package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-site-director/entity"
)

func TestParseOperationID(t *testing.T) {
	id, err := parseOperationID("17")
	require.NoError(t, err)
	assert.Equal(t, uint(17), id)

	for _, bad := range []string{"0", "-3", "abc", ""} {
		_, err := parseOperationID(bad)
		assert.Error(t, err, bad)
	}
}

func TestWritePing(t *testing.T) {
	var out bytes.Buffer
	writePing(&out, []string{"10.0.0.1:8000", "10.0.0.2:8000", "10.0.0.3:8000"}, []int{0, 2})

	text := out.String()
	assert.Contains(t, text, "2/3 reachable")
	assert.Regexp(t, `1\s+10\.0\.0\.2:8000\s+down`, text)
	assert.Regexp(t, `2\s+10\.0\.0\.3:8000\s+up`, text)
}

func TestWriteOperation(t *testing.T) {
	started := time.Now()
	op := &entity.Operation{
		ID:          3,
		SiteID:      42,
		Type:        entity.OperationRenameSite,
		StartedTime: &started,
		Actions: []entity.Action{
			{Slug: "find_pingable_appservers", EquivalentCommand: "ping"},
			{Slug: "change_site_name", Message: "ProtocolError: boom"},
			{Slug: "update_appserver_nginx_config"},
		},
	}
	op.Actions[0].SetResult(true)
	op.Actions[1].StartedTime = &started
	op.Actions[1].SetResult(false)

	var out bytes.Buffer
	writeOperation(&out, op)

	text := out.String()
	assert.Contains(t, text, "Operation 3 (rename_site) on site 42: failed")
	assert.Regexp(t, `find_pingable_appservers\s+ok`, text)
	assert.Regexp(t, `change_site_name\s+failed`, text)
	assert.Regexp(t, `update_appserver_nginx_config\s+pending`, text)
	assert.Contains(t, text, "ProtocolError: boom")
}

func TestWriteOperations(t *testing.T) {
	var out bytes.Buffer
	writeOperations(&out, []entity.Operation{{ID: 9, SiteID: 1, Type: entity.OperationRestartSite}})
	assert.Regexp(t, `9\s+1\s+restart_site\s+queued`, out.String())
}
