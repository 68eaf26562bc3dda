package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	args, err := parseArgs([]string{"-org", "1001", "-tenant", "2002", "-from", "2024-01-01", "-to", "2024-02-01", "-finalize"})
	require.NoError(t, err)
	assert.EqualValues(t, 1001, args.orgID)
	assert.EqualValues(t, 2002, args.tenantID)
	assert.True(t, args.from.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, args.to.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "billing-run", args.by)
	assert.True(t, args.finalize)
}

func TestParseArgsRejectsBadInput(t *testing.T) {
	_, err := parseArgs([]string{"-org", "x", "-tenant", "2", "-from", "2024-01-01", "-to", "2024-02-01"})
	assert.Error(t, err)

	_, err = parseArgs([]string{"-org", "1", "-tenant", "2", "-from", "2024-02-01", "-to", "2024-01-01"})
	assert.Error(t, err)
}
