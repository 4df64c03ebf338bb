package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/quipe/internal/models"
)

func TestSystemPrompt(t *testing.T) {
	p, err := LoadPrompts()
	require.NoError(t, err)

	guest := p.System(RequestHints{City: "Berlin"}, true, false)
	assert.True(t, strings.HasPrefix(guest, "You are helping users set up"))
	assert.Contains(t, guest, "city: Berlin")
	assert.Contains(t, guest, "lat: unknown")
	assert.Contains(t, guest, "Artifacts is a special user interface mode")

	regular := p.System(RequestHints{}, false, true)
	assert.True(t, strings.HasPrefix(regular, "You are a friendly assistant!"))
	assert.NotContains(t, regular, "Artifacts is a special user interface mode")
}

func TestDocumentPrompts(t *testing.T) {
	p, err := LoadPrompts()
	require.NoError(t, err)

	for _, kind := range []models.DocumentKind{models.KindText, models.KindCode, models.KindSheet} {
		assert.NotEmpty(t, p.Document(kind), kind)
		assert.Contains(t, p.UpdateDocument("OLD CONTENT", kind), "OLD CONTENT", kind)
	}
	assert.Empty(t, p.UpdateDocument("x", "video"))
}
