package templates

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedRegistry(t *testing.T) {
	reg := Get()
	assert.ElementsMatch(t, []string{"concierge/system", "concierge/quota_notice"}, reg.List())
}

func TestRegistryRender(t *testing.T) {
	reg, err := NewRegistryFromFS(fstest.MapFS{
		"concierge/hello.tmpl": {Data: []byte(`Hi {{.Name}}, today is {{date .Day}}`)},
		"README.md":            {Data: []byte(`ignored`)},
	})
	require.NoError(t, err)

	out, err := reg.Render("concierge/hello", map[string]any{
		"Name": "Ana",
		"Day":  time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana, today is Sat 4 Jul 2026", out)
}

func TestRegistryMissingTemplate(t *testing.T) {
	reg, err := NewRegistryFromFS(fstest.MapFS{})
	require.NoError(t, err)

	_, err = reg.Render("concierge/nope", nil)
	assert.Error(t, err)
}

func TestRegistryParseError(t *testing.T) {
	_, err := NewRegistryFromFS(fstest.MapFS{
		"broken.tmpl": {Data: []byte(`{{.Name`)},
	})
	assert.Error(t, err)
}
