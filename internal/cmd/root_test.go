package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	SetVersionInfo("1.0.0", "abc123", "2026-08-30")
	assert.Equal(t, "1.0.0", versionInfo.Version)
	assert.Equal(t, "abc123", versionInfo.Commit)
	assert.Equal(t, "2026-08-30", versionInfo.BuildDate)
}

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := exitError(foundry.ExitInvalidArgument, "Bad flag", base)

	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "Bad flag")

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(wrapped))

	assert.Equal(t, 1, exitCode(errors.New("plain")))
}
