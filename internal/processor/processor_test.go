package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkchaser/internal/config"
	"linkchaser/pkg/types"
)

const parserOutput = `<div class="mw-parser-output">
<div class="hatnote">For other uses, see <a href="/wiki/Hatnote">Hatnote</a>.</div>
<table class="infobox"><tr><td><a href="/wiki/Infobox">Infobox</a></td></tr></table>
<div class="thumb"><a href="/wiki/File:Plato.jpg">Plato</a></div>
<p><b>Philosophy</b> (from <a href="/wiki/Greek_language">Greek</a>)
<span id="coordinates"><a href="/wiki/Geographic_coordinate_system">coords</a></span>
<i><a href="/wiki/Philosophia">philosophia</a></i>
<a href="/wiki/Missing_page" class="new">red</a>
<sup class="reference"><a href="#cite_note-1">[1]</a></sup>
is the <a href="/wiki/Rationality" title="Rationality">rational</a> study.</p>
</div>`

func TestPrepareDropsNonContent(t *testing.T) {
	p := NewHTMLProcessor(config.Default().Preprocess)
	out, err := p.Prepare(parserOutput)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `<div class="mw-parser-output">`), "wrapper must survive: %s", out)
	for _, gone := range []string{"Hatnote", "Infobox", "Plato.jpg", "coordinate", "Philosophia", "Missing_page", "cite_note"} {
		assert.NotContains(t, out, gone)
	}
	assert.Contains(t, out, "/wiki/Rationality")
	assert.Contains(t, out, "/wiki/Greek_language")
}

func TestPreparedMarkupSelectsFirstLink(t *testing.T) {
	p := NewHTMLProcessor(config.Default().Preprocess)
	out, err := p.Prepare(parserOutput)
	require.NoError(t, err)

	// without sanitizing, the parenthetical link would win
	id, ok := FirstLink(out)
	require.True(t, ok)
	assert.Equal(t, types.DocumentID("Greek language"), id)

	id, ok = FirstLink(StripParentheses(out))
	require.True(t, ok)
	assert.Equal(t, types.DocumentID("Rationality"), id)
}

func TestPrepareCustomSelectors(t *testing.T) {
	p := NewHTMLProcessor(config.PreprocessConfig{DropSelectors: []string{"b"}})
	out, err := p.Prepare(`<div><b>bold</b><i>kept</i></div>`)
	require.NoError(t, err)
	assert.Equal(t, `<div><i>kept</i></div>`, out)
}
