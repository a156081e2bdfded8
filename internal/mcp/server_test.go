package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/board"
	"github.com/btouchard/sprintdesk/internal/github"
	"github.com/btouchard/sprintdesk/internal/store"
	"github.com/btouchard/sprintdesk/internal/sync"
	"github.com/btouchard/sprintdesk/internal/token"
)

func TestNewServer_RegistersTools(t *testing.T) {
	t.Parallel()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	m := github.NewMockServer()
	t.Cleanup(m.Close)
	client := m.NewTestClient()

	s := NewServer(&Deps{
		Store:   st,
		Access:  auth.NewAccess(st),
		Tokens:  token.NewProvider(st, client, token.Config{}),
		Engine:  sync.NewEngine(st, client, nil, sync.Config{}),
		Board:   board.NewService(st, client),
		Version: "test",
	})

	tools := s.ListTools()
	for _, name := range []string{"sync_project", "list_backlog", "list_sprint_issues", "closed_yesterday"} {
		tool, ok := tools[name]
		if assert.True(t, ok, name) {
			assert.NotEmpty(t, tool.Tool.InputSchema.Required, name)
		}
	}
	assert.Len(t, tools, 4)
}
