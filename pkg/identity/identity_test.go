package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.2.3.4", Version(0x0001000200030004).String())
	assert.Equal(t, "0.0.0.0", Version(0).String())
	assert.Equal(t, "65535.65535.65535.65535", Version(^uint64(0)).String())
	assert.Equal(t, "10.0.19041.1", NewVersion(10, 0, 19041, 1).String())
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "1.2.3.4", want: 0x0001000200030004},
		{in: "1.2", want: 0x0001000200000000},
		{in: " 3.0.0.0 ", want: NewVersion(3, 0, 0, 0)},
		{in: "", wantErr: true},
		{in: "1.2.3.4.5", wantErr: true},
		{in: "1.65536.0.0", wantErr: true},
		{in: "1.x.0.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVersionRoundTrip(t *testing.T) {
	v := NewVersion(4, 17, 0, 65535)
	parsed, err := ParseVersion(v.String())
	require.NoError(t, err)
	assert.Equal(t, v, parsed)
}

func TestPublisherID(t *testing.T) {
	assert.Equal(t, "8wekyb3d8bbwe",
		PublisherID("CN=Microsoft Corporation, O=Microsoft Corporation, L=Redmond, S=Washington, C=US"))
	assert.Equal(t, "h91ms92gdsmmt", PublisherID("CN=Contoso"))
}

func TestFullName(t *testing.T) {
	id := Identity{
		Name:         "Contoso.Notes",
		Version:      NewVersion(1, 2, 3, 4),
		Architecture: "X64",
		Publisher:    "CN=Contoso",
	}
	assert.Equal(t, "Contoso.Notes_1.2.3.4_x64__h91ms92gdsmmt", id.FullName())
	assert.Equal(t, "Contoso.Notes_h91ms92gdsmmt", id.FamilyName())

	id.Architecture = ""
	id.ResourceID = "en-us"
	assert.Equal(t, "Contoso.Notes_1.2.3.4_neutral_en-us_h91ms92gdsmmt", id.FullName())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Identity{Name: "A.B", Publisher: "CN=X"}.Validate())
	assert.Error(t, Identity{Publisher: "CN=X"}.Validate())
	assert.Error(t, Identity{Name: "A"}.Validate())
	assert.Error(t, Identity{Name: "A_B", Publisher: "CN=X"}.Validate())
}

func TestSameFamily(t *testing.T) {
	a := Identity{Name: "A", Publisher: "CN=X", Version: NewVersion(1, 0, 0, 0)}
	b := Identity{Name: "A", Publisher: "CN=X", Version: NewVersion(2, 0, 0, 0)}
	c := Identity{Name: "A", Publisher: "CN=Y", Version: NewVersion(1, 0, 0, 0)}
	assert.True(t, a.SameFamily(b))
	assert.False(t, a.SameFamily(c))
}

func TestCommonName(t *testing.T) {
	assert.Equal(t, "Contoso Software", CommonName("CN=Contoso Software, O=Contoso Corporation, C=US"))
	assert.Equal(t, "Fabrikam", CommonName(`O=Org, CN="Fabrikam"`))
	assert.Equal(t, "plain", CommonName("plain"))
}
