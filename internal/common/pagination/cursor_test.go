package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcrew/botcrew/internal/common/apperr"
)

func TestCursorRoundTrip(t *testing.T) {
	id := uuid.New().String()
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)

	cursor := EncodeCursor(createdAt, id)
	gotTime, gotID, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, gotTime.Equal(createdAt))
	assert.Equal(t, id, gotID)
}

func TestCursorRoundTripNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	createdAt := time.Date(2026, 1, 2, 15, 4, 5, 0, loc)

	cursor := EncodeCursor(createdAt, "m1")
	gotTime, _, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, gotTime.Location())
	assert.True(t, gotTime.Equal(createdAt))
}

func TestDecodeCursorMalformed(t *testing.T) {
	cases := []string{
		"not-base64!!",
		"aGVsbG8=",        // valid base64, not JSON
		"e30=",            // "{}" -- missing fields
		"eyJjIjoieCJ9",    // {"c":"x"} -- bad timestamp
	}
	for _, cursor := range cases {
		_, _, err := DecodeCursor(cursor)
		require.Error(t, err, "cursor %q", cursor)
		assert.True(t, apperr.IsValidation(err))
	}
}
