package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportedTextureLabel(t *testing.T) {
	assert.Equal(t, "albedo", (&ImportedTexture{Name: "albedo", Path: "tex/albedo.png"}).Label())
	assert.Equal(t, "tex/albedo.png", (&ImportedTexture{Path: "tex/albedo.png"}).Label())
	var missing *ImportedTexture
	assert.Equal(t, "<nil>", missing.Label())
}
