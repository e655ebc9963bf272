package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const previewGoals = `[
  {"id": "11111111-1111-1111-1111-111111111111", "owner": "99999999-9999-9999-9999-999999999999",
   "targetAmount": "1000", "currentAmount": "500", "priority": 1, "status": "active", "isVisible": true,
   "createdAt": "2024-01-01T00:00:00Z"},
  {"id": "22222222-2222-2222-2222-222222222222", "owner": "99999999-9999-9999-9999-999999999999",
   "targetAmount": "800", "currentAmount": "500", "priority": 1, "status": "active", "isVisible": true,
   "createdAt": "2024-01-02T00:00:00Z"}
]`

type previewOutput struct {
	Pool        decimal.Decimal `json:"pool"`
	Leftover    decimal.Decimal `json:"leftover"`
	Distributed decimal.Decimal `json:"distributed"`
	Allocations []struct {
		GoalID string          `json:"goalId"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"allocations"`
}

func runRoot(t *testing.T, stdin string, args ...string) previewOutput {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		flagRemoved = ""
		flagGoalsFile = "-"
	})
	require.NoError(t, rootCmd.Execute())

	var res previewOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	return res
}

func TestPreviewCommand(t *testing.T) {
	res := runRoot(t, previewGoals, "preview", "--amount", "700")

	assert.True(t, res.Pool.Equal(decimal.NewFromInt(700)))
	assert.True(t, res.Distributed.Equal(decimal.NewFromInt(699)))
	assert.True(t, res.Leftover.Equal(decimal.NewFromInt(1)))
	require.Len(t, res.Allocations, 2)
	assert.True(t, res.Allocations[0].Amount.Equal(decimal.NewFromInt(437)))
	assert.True(t, res.Allocations[1].Amount.Equal(decimal.NewFromInt(262)))
}

func TestPreviewCommandRedistribute(t *testing.T) {
	res := runRoot(t, previewGoals, "preview", "--amount", "100",
		"--removed", "11111111-1111-1111-1111-111111111111")

	require.Len(t, res.Allocations, 1)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", res.Allocations[0].GoalID)
	assert.True(t, res.Allocations[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, res.Leftover.IsZero())
}
