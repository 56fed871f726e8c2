package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vango-dev/queryguard/pkg/query"
)

func TestPatchApply(t *testing.T) {
	prev := map[string]int{"a": 1, "b": 2}

	next, deleted := NewPatch[int]().Set("a", 10).Delete("b", "missing").Set("c", 3).apply(prev)
	assert.Equal(t, map[string]int{"a": 10, "c": 3}, next)
	assert.Equal(t, []string{"b", "missing"}, deleted)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, prev, "apply must not touch prev")
}

func TestPatchOrder(t *testing.T) {
	next, deleted := NewPatch[int]().Delete("a").Set("a", 5).apply(map[string]int{"a": 1})
	assert.Equal(t, map[string]int{"a": 5}, next)
	assert.Equal(t, []string{"a"}, deleted)
}

func TestPatchZeroValueIsNotDeletion(t *testing.T) {
	next, deleted := NewPatch[string]().Set("q", "").apply(map[string]string{"q": "x"})
	assert.Equal(t, map[string]string{"q": ""}, next)
	assert.Empty(t, deleted)
}

func TestNilPatch(t *testing.T) {
	var p *Patch[int]
	assert.Zero(t, p.Len())
	next, deleted := p.apply(map[string]int{"a": 1})
	assert.Equal(t, map[string]int{"a": 1}, next)
	assert.Nil(t, deleted)
}

func TestPatchOf(t *testing.T) {
	p := PatchOf(map[string]int{"b": 2, "a": 1})
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "a", p.ops[0].key)
}

func TestApplyPolicy(t *testing.T) {
	raw := query.Raw{"a": query.One("1"), "b": query.One("2")}

	assert.True(t, applyPolicy(raw, []string{"a"}, Keep).Equal(raw))
	assert.True(t, applyPolicy(raw, []string{"a"}, Drop).Equal(query.Raw{"a": query.One("1")}))
	assert.Empty(t, applyPolicy(raw, nil, Drop))
}

func TestOverlay(t *testing.T) {
	current := query.Raw{"a": query.One("1"), "b": query.One("2")}
	serialized := query.Raw{"a": query.One("9"), "c": query.One("3")}

	kept := overlay(current, serialized, []string{"a"}, Keep)
	assert.True(t, kept.Equal(query.Raw{"a": query.One("9"), "b": query.One("2"), "c": query.One("3")}))

	dropped := overlay(current, serialized, []string{"a"}, Drop)
	assert.True(t, dropped.Equal(query.Raw{"a": query.One("9")}))
}

func TestUpdateConfigDefaults(t *testing.T) {
	g := &Guard[int]{history: HistoryPush}

	cfg, err := g.updateConfig(nil)
	assert.NoError(t, err)
	assert.Equal(t, HistoryPush, cfg.history)
	assert.Equal(t, ResetClear, cfg.mode)

	cfg, err = g.updateConfig([]UpdateOption{Replace, WriteDefaults, nil})
	assert.NoError(t, err)
	assert.Equal(t, HistoryReplace, cfg.history)
	assert.Equal(t, ResetWriteDefaults, cfg.mode)

	_, err = g.updateConfig([]UpdateOption{WithResetMode("wipe")})
	assert.ErrorIs(t, err, ErrInvalidOption)
}
