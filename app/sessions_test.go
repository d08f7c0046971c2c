package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/adapters/ingest"
	"datalens/adapters/report"
	"datalens/domain/core"
	"datalens/internal/errors"
)

func TestSessionManager(t *testing.T) {
	m := NewSessionManager(testConfig(), ingest.NewReader(""), report.NewBuilder())
	assert.Equal(t, 0, m.Count())

	first := m.Create()
	second := m.Create()
	assert.Equal(t, 2, m.Count())
	assert.NotEqual(t, first.ID, second.ID)

	got, err := m.Get(first.ID)
	require.NoError(t, err)
	assert.Same(t, first, got)

	m.Drop(first.ID)
	assert.Equal(t, 1, m.Count())

	_, err = m.Get(first.ID)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestSessionManager_UnknownID(t *testing.T) {
	m := NewSessionManager(testConfig(), ingest.NewReader(""), report.NewBuilder())
	_, err := m.Get(core.SessionID(core.NewID()))
	require.Error(t, err)
}
