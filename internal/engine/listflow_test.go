package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderNumberedList(t *testing.T) {
	out := renderNumberedList("Elige:", []string{"uno", "dos"}, func(s string) string { return s })
	assert.Equal(t, "Elige:\n1. uno\n2. dos", out)

	out = renderNumberedList("Elige:", nil, func(s string) string { return s })
	assert.Equal(t, "Elige:", out)
}

func TestPickIndex(t *testing.T) {
	cases := []struct {
		input string
		n     int
		idx   int
		ok    bool
	}{
		{"1", 3, 0, true},
		{" 3 ", 3, 2, true},
		{"0", 3, 0, false},
		{"4", 3, 0, false},
		{"dos", 3, 0, false},
		{"", 3, 0, false},
		{"1", 0, 0, false},
	}
	for _, tc := range cases {
		idx, ok := pickIndex(tc.input, tc.n)
		assert.Equal(t, tc.ok, ok, "input %q", tc.input)
		if tc.ok {
			assert.Equal(t, tc.idx, idx, "input %q", tc.input)
		}
	}
}

func TestHandleSelectionCancel(t *testing.T) {
	stay := turnResult{state: StateChoosingOption}
	out, err := handleSelection("cancelar", []string{"a"}, stay, func(string) (turnResult, error) {
		t.Fatal("finalize must not run on cancel")
		return turnResult{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, out.state)
	assert.Equal(t, []string{replyCancelled}, out.replies)
}

func TestHandleSelectionInvalidStays(t *testing.T) {
	stay := turnResult{state: StateChoosingOption, ctx: Context{Slots: []SlotOption{{Date: "2026-09-07", Time: "09:00"}}}}
	out, err := handleSelection("nope", []string{"a"}, stay, func(string) (turnResult, error) {
		t.Fatal("finalize must not run on an invalid pick")
		return turnResult{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateChoosingOption, out.state)
	assert.Equal(t, []string{replyInvalidPick}, out.replies)
	assert.Len(t, out.ctx.Slots, 1)
}

func TestHandleSelectionFinalizes(t *testing.T) {
	var picked string
	out, err := handleSelection("2", []string{"a", "b"}, turnResult{}, func(s string) (turnResult, error) {
		picked = s
		return turnResult{state: StateIdle}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "b", picked)
	assert.Equal(t, StateIdle, out.state)
}

func TestKeywordPredicates(t *testing.T) {
	assert.True(t, isReset("hola"))
	assert.True(t, isReset("menu"))
	assert.False(t, isReset("hola, buenas"))

	assert.True(t, isAffirmative("si"))
	assert.True(t, isAffirmative("sí"))
	assert.True(t, isAffirmative("confirmar"))
	assert.False(t, isAffirmative("simon"))

	assert.True(t, isNegative("no"))
	assert.True(t, isNegative("cancelar"))

	assert.True(t, containsAny(normalize("  Quiero AGENDAR ya "), bookingKeywords))
	assert.False(t, containsAny("gracias", bookingKeywords))
}
