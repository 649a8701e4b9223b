package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/foraging-backend/internal/history"
	"github.com/xtding233/foraging-backend/internal/patch"
)

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	require.NoError(t, err)
	run, err := store.NewRun("forage simulation", 3)
	require.NoError(t, err)
	run.Record(1, patch.OpSeed, patch.State{PatchID: 1, Amount: 2})
	run.Record(2, patch.OpSeed, patch.State{PatchID: 2, Amount: 4})
	run.Record(3, patch.OpUpdate, patch.State{PatchID: 2, Amount: 5})
	require.NoError(t, run.Err())
	require.NoError(t, store.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"history", "--db", path})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), run.Info().ID)
	assert.Contains(t, out.String(), "forage simulation")

	out.Reset()
	rootCmd.SetArgs([]string{"history", "--db", path, "--run", run.Info().ID, "--patch", "2", "-o", "json"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(3), entries[1].Seq)
	assert.Equal(t, 5.0, entries[1].State.Amount)

	rootCmd.SetArgs([]string{"history", "--db", filepath.Join(t.TempDir(), "missing.db")})
	require.Error(t, rootCmd.ExecuteContext(context.Background()))
}
