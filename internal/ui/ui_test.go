package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	for _, fn := range []func(string) string{RenderPass, RenderWarn, RenderFail, RenderAccent, RenderMuted} {
		assert.Contains(t, fn("ok"), "ok")
	}
}

func TestTable(t *testing.T) {
	out := Table([]string{"ID", "TITLE"}, [][]string{{"g1", "Serve"}, {"g2", "Footwork"}})
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Footwork")
}
