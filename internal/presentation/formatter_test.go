package presentation

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
	"github.com/szhem/osgi-utils/internal/registry"
)

func publishedRefs(t *testing.T) []registry.Reference {
	t.Helper()
	r := registry.New()
	t.Cleanup(r.Close)

	_, err := r.Publish(t.Context(), registry.Descriptor{Interfaces: []string{"com.acme.Greeter"}}, map[string]any{"region": "eu"})
	require.NoError(t, err)
	_, err = r.Publish(t.Context(), registry.Descriptor{Interfaces: []string{"com.acme.Clock"}}, nil)
	require.NoError(t, err)

	snap, err := r.Query(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, snap.References, 2)
	return snap.References
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatReferences_Text(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, FormatText)

	err := f.FormatReferences(publishedRefs(t), func(ref registry.Reference) string {
		return ref.ID().String() + " " + ref.Interfaces()[0]
	})
	require.NoError(t, err)
	assert.Equal(t, "1 com.acme.Greeter\n2 com.acme.Clock\n", buf.String())
}

func TestFormatReferences_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, FormatJSON)
	require.NoError(t, f.FormatReferences(publishedRefs(t), nil))

	var got []ReferenceDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, []string{"com.acme.Greeter"}, got[0].Interfaces)
	assert.Equal(t, "eu", got[0].Attributes["region"])
}

func TestFormatReferences_YAML(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, FormatYAML)
	require.NoError(t, f.FormatReferences(publishedRefs(t), nil))

	var got []ReferenceDTO
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].ID)
	assert.Equal(t, []string{"com.acme.Clock"}, got[1].Interfaces)
	assert.Contains(t, buf.String(), "region: eu")
}

func TestFormatPublication(t *testing.T) {
	p := FromStored(sqlite.StoredPublication{
		Publication: registry.Publication{
			Key:        "k-1",
			Interfaces: []string{"com.acme.Greeter"},
			Attributes: map[string]any{"port": int64(8080)},
		},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	var text bytes.Buffer
	require.NoError(t, NewFormatter(&text, FormatText).FormatPublication(p))
	assert.Equal(t, "k-1\n", text.String())

	var js bytes.Buffer
	require.NoError(t, NewFormatter(&js, FormatJSON).FormatPublication(p))
	assert.Contains(t, js.String(), `"key": "k-1"`)
	assert.Contains(t, js.String(), `"port": 8080`)
	assert.Contains(t, js.String(), `"created_at": "2024-01-02T03:04:05Z"`)
}

func TestFormatter_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := NewFormatter(&buf, Format("xml")).FormatPublication(PublicationDTO{Key: "k"})
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFormatPublications(t *testing.T) {
	pubs := []PublicationDTO{
		{Key: "k-1", Interfaces: []string{"com.acme.Greeter", "com.acme.Clock"}},
		{Key: "k-2", Interfaces: []string{"com.acme.Store"}},
	}

	var text bytes.Buffer
	require.NoError(t, NewFormatter(&text, FormatText).FormatPublications(pubs))
	assert.Equal(t, "k-1 com.acme.Greeter,com.acme.Clock\nk-2 com.acme.Store\n", text.String())

	var out bytes.Buffer
	require.NoError(t, NewFormatter(&out, FormatYAML).FormatPublications(pubs))
	var got []PublicationDTO
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "k-2", got[1].Key)
}
