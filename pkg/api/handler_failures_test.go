package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

func TestListAndResolveFailures(t *testing.T) {
	f := newTestServer(t)

	first, err := f.failures.Record("T001", "alice", models.ErrorTypeTimeout, "deadline hit", "")
	require.NoError(t, err)
	_, err = f.failures.Record("T002", "alice", models.ErrorTypeBudget, "budget exceeded", "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/agent-failures", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[FailuresResponse](t, rec).Failures, 2)

	rec = f.do(t, http.MethodDelete, "/api/agent-failures/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[OKResponse](t, rec).OK)

	rec = f.do(t, http.MethodGet, "/api/agent-failures?resolved=false", nil)
	unresolved := decode[FailuresResponse](t, rec).Failures
	require.Len(t, unresolved, 1)
	assert.Equal(t, "T002", unresolved[0].TaskID)

	rec = f.do(t, http.MethodGet, "/api/agent-failures?resolved=true", nil)
	resolved := decode[FailuresResponse](t, rec).Failures
	require.Len(t, resolved, 1)
	assert.Equal(t, first.ID, resolved[0].ID)
}

func TestResolveUnknownFailure(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodDelete, "/api/agent-failures/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListFailuresRejectsBadResolvedParam(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/api/agent-failures?resolved=banana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
