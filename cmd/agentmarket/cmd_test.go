package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/habiliai/agentmarket/entity"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd := newCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(t.Context()))

	return out.String()
}

func TestCLI_AgentsAndTransfers(t *testing.T) {
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "market.db"))
	t.Setenv("LOG_LEVEL", "error")

	var a, b entity.Agent
	require.NoError(t, json.Unmarshal([]byte(run(t, "agent", "create", "alpha", "-u", "u1", "--price", "10", "--category", "data")), &a))
	require.NoError(t, json.Unmarshal([]byte(run(t, "agent", "create", "beta", "-u", "u2", "--price", "30")), &b))
	require.Equal(t, "u1", a.OwnerUserID)

	var tx entity.Transaction
	require.NoError(t, json.Unmarshal([]byte(run(t, "tx", "send", a.ID, b.ID, "20", "-u", "u1", "--token", "DAI")), &tx))
	require.Equal(t, entity.TransactionStatusPending, tx.Status)
	require.Equal(t, entity.TokenDAI, tx.Token)

	listed := run(t, "agent", "list", "--sort", "price")
	require.Contains(t, listed, "alpha")
	require.Contains(t, listed, "beta")

	stats := run(t, "stats")
	require.Contains(t, stats, "Active agents")
	require.Contains(t, stats, "excellent")

	require.Contains(t, run(t, "jobs", "run-due"), "ran 0 job(s)")
}

func TestCLI_Errors(t *testing.T) {
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "market.db"))
	t.Setenv("LOG_LEVEL", "error")

	cmd := newCmd()
	cmd.SetArgs([]string{"tx", "send", "a", "b", "not-a-number", "-u", "u1"})
	require.Error(t, cmd.ExecuteContext(t.Context()))

	cmd = newCmd()
	cmd.SetArgs([]string{"jobs", "run-task", "nope"})
	require.Error(t, cmd.ExecuteContext(t.Context()))
}
