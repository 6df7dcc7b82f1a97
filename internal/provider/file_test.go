package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const tripsPayload = `{
	"version": "0.3",
	"data": {"trips": [{"trip_id": "11111111-1111-1111-1111-111111111111"}]}
}`

const tripsPayloadArray = `[
	{"version": "0.3", "data": {"trips": [{"trip_id": "11111111-1111-1111-1111-111111111111"}]}},
	{"version": "0.3", "data": {"trips": [{"trip_id": "22222222-2222-2222-2222-222222222222"}]}}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	tripsFile := writeFile(t, dir, "provider_trips_2019.json", tripsPayload)
	writeFile(t, dir, "provider_status_changes_2019.json", `{}`)
	writeFile(t, dir, "readme.txt", "not a payload")

	t.Run("direct file kept when name matches kind", func(t *testing.T) {
		files, err := ExpandFiles([]string{tripsFile}, Trips)
		require.NoError(t, err)
		require.Equal(t, []string{tripsFile}, files)
	})

	t.Run("direct file skipped when name does not match", func(t *testing.T) {
		files, err := ExpandFiles([]string{tripsFile}, StatusChanges)
		require.NoError(t, err)
		require.Empty(t, files)
	})

	t.Run("directory searched for kind", func(t *testing.T) {
		files, err := ExpandFiles([]string{dir}, Trips)
		require.NoError(t, err)
		require.Equal(t, []string{tripsFile}, files)
	})

	t.Run("missing source errors", func(t *testing.T) {
		_, err := ExpandFiles([]string{filepath.Join(dir, "absent.json")}, Trips)
		require.Error(t, err)
	})
}

func TestFileSourceRead(t *testing.T) {
	src := NewFileSource(zerolog.Nop())
	dir := t.TempDir()

	t.Run("single payload object", func(t *testing.T) {
		path := writeFile(t, dir, "one_trips.json", tripsPayload)
		pages, err := src.Read(Trips, []string{path})
		require.NoError(t, err)
		require.Len(t, pages, 1)
		require.Equal(t, "0.3", pages[0].Version)
		require.Len(t, pages[0].Records, 1)
	})

	t.Run("payload array becomes one page each", func(t *testing.T) {
		path := writeFile(t, dir, "many_trips.json", tripsPayloadArray)
		pages, err := src.Read(Trips, []string{path})
		require.NoError(t, err)
		require.Len(t, pages, 2)
	})

	t.Run("no matching files", func(t *testing.T) {
		_, err := src.Read(StatusChanges, []string{filepath.Join(dir, "one_trips.json")})
		require.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		path := writeFile(t, dir, "bad_trips.json", "{not json")
		_, err := src.Read(Trips, []string{path})
		require.Error(t, err)
	})
}
