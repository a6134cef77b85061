package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
plugins: [fill, wave]
plugin-paths: ["/usr/lib/keyledsd"]
devices:
  ABC123: G410
groups:
  wasd: [W, A, S, D]
effects:
  bg:
    plugins:
      - plugin: fill
        color: "#101010"
  typing:
    plugins:
      - plugin: wave
        speed: "5"
  notif:
    plugins:
      - plugin: fill
        color: red
profiles:
  - name: default
    effects: [bg]
  - name: coding
    lookup: {class: "kate"}
    effects: [typing]
  - name: __overlay__
    effects: [notif]
`

func TestParseSampleDocument(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"fill", "wave"}, doc.Plugins)
	assert.Equal(t, "G410", doc.Devices["ABC123"])
	assert.Equal(t, []string{"W", "A", "S", "D"}, doc.Groups["wasd"])
	require.Contains(t, doc.Effects, "bg")
	require.Len(t, doc.Effects["bg"].Plugins, 1)
	assert.Equal(t, "fill", doc.Effects["bg"].Plugins[0].Plugin)
	assert.Equal(t, "#101010", doc.Effects["bg"].Plugins[0].Options["color"])
}

func TestCompileProfilesMatchesContextAndDevice(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	profiles, errs := CompileProfiles(doc)
	require.Empty(t, errs)
	require.Len(t, profiles, 3)

	coding := findProfile(t, profiles, "coding")
	assert.True(t, coding.MatchesContext(func(string) string { return "kate" }))
	assert.False(t, coding.MatchesContext(func(string) string { return "firefox" }))
	assert.True(t, coding.MatchesDevice("anything")) // empty Devices matches every device
}

func TestCompileProfilesDropsOnlyBadRegex(t *testing.T) {
	doc := &Document{
		Profiles: []ProfileDef{
			{Name: "good", Lookup: map[string]string{"class": "firefox"}},
			{Name: "bad", Lookup: map[string]string{"class": "("}},
		},
	}
	profiles, errs := CompileProfiles(doc)
	require.Len(t, errs, 1)
	require.Len(t, profiles, 1)
	assert.Equal(t, "good", profiles[0].Name)
}

func findProfile(t *testing.T, profiles []CompiledProfile, name string) *CompiledProfile {
	t.Helper()
	for i := range profiles {
		if profiles[i].Name == name {
			return &profiles[i]
		}
	}
	t.Fatalf("profile %q not found", name)
	return nil
}
