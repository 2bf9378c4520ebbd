package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStyles(t *testing.T) {
	assert.True(t, GetStyles(false).Header.GetBold())
	assert.False(t, GetStyles(true).Header.GetBold())
}

func TestNoColorStyles_RenderPlainText(t *testing.T) {
	s := NoColorStyles()
	assert.Equal(t, "writing", s.Stage.Render("writing"))
	assert.Equal(t, "ok", s.Active.Render("ok"))
}
