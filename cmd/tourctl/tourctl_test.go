package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const sampleCSV = `id,lat,lng
depot,40.00,-75.00
a,40.10,-75.00
b,40.10,-74.90
c,40.00,-74.90
bad,north,-75.00
`

func TestSolveJSON(t *testing.T) {
	path := writeFile(t, "stops.csv", sampleCSV)
	out, err := execute(t, "solve", "--csv", path, "--iterations", "40", "--seed", "5", "--json")
	require.NoError(t, err)

	var got solveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Tour, 5)
	assert.Equal(t, got.Tour[0], got.Tour[4])
	assert.Equal(t, got.IDs[0], got.IDs[4])
	assert.Equal(t, 1, got.Skipped)
	assert.LessOrEqual(t, got.Cost, got.InitialCost)
	assert.Equal(t, int64(5), got.Seed)
}

func TestSolveSelectAndTable(t *testing.T) {
	path := writeFile(t, "stops.csv", sampleCSV)
	out, err := execute(t, "solve", "--csv", path, "--select", "depot, a ,b", "--strategy", "nearest", "--polish")
	require.NoError(t, err)
	table, summary, ok := strings.Cut(out, "\n\n")
	require.True(t, ok, out)
	// header plus the closed tour over three locations
	assert.Len(t, strings.Split(table, "\n"), 5)
	assert.Contains(t, table, "depot")
	assert.Contains(t, summary, "cost ")

	_, err = execute(t, "solve", "--csv", path, "--select", "depot,zzz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown location id")

	_, err = execute(t, "solve")
	require.Error(t, err)
}

func TestScore(t *testing.T) {
	path := writeFile(t, "m.json", `[[0,1,9,1],[1,0,1,9],[9,1,0,1],[1,9,1,0]]`)
	out, err := execute(t, "score", "--matrix", path, "--tour", "0,1,2,3")
	require.NoError(t, err)
	assert.Equal(t, "4", strings.TrimSpace(out))

	out, err = execute(t, "score", "--matrix", path, "--tour", "0,2,1,3,0")
	require.NoError(t, err)
	assert.Equal(t, "20", strings.TrimSpace(out))

	_, err = execute(t, "score", "--matrix", path, "--tour", "0,1,1,3")
	require.Error(t, err)
	_, err = execute(t, "score", "--matrix", path, "--tour", "0,x")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tourplan "))
}
