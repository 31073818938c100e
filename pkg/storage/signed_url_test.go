package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("report-1", "gradebook/course-1.xlsx")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	reportID, key, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "report-1", reportID)
	assert.Equal(t, "gradebook/course-1.xlsx", key)
	assert.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpiredToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	signer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := signer.Generate("report-1", "ledger.csv")
	require.NoError(t, err)

	signer.now = time.Now
	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	reportID, key, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "report-1", reportID)
	assert.Equal(t, "ledger.csv", key)
}

func TestSignedURLSignerRejectsForeignSecret(t *testing.T) {
	token, _, err := NewSignedURLSigner("one", time.Hour).Generate("report-1", "a.pdf")
	require.NoError(t, err)

	_, _, _, err = NewSignedURLSigner("two", time.Hour).Parse(token, true)
	require.Error(t, err)
}

func TestSignedURLSignerRequiresInputs(t *testing.T) {
	_, _, err := NewSignedURLSigner("secret", time.Hour).Generate("", "a.pdf")
	require.Error(t, err)
	_, _, err = NewSignedURLSigner("", time.Hour).Generate("r", "a.pdf")
	require.Error(t, err)
}
