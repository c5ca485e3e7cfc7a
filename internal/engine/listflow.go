package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// The appointment and commerce flows share one protocol: offer a numbered
// list, await a 1-based pick, confirm the selection. The helpers below are
// that protocol; the flows only differ in the item type and the finalize
// callback.

func renderNumberedList[T any](header string, items []T, label func(T) string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, item := range items {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, label(item)))
	}
	return b.String()
}

// pickIndex parses the input as a 1-based selection into a list of n items
// and returns the zero-based index.
func pickIndex(input string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// handleSelection runs one turn of the numbered-list protocol: cancel resets,
// a valid pick is handed to the finalize callback, anything else re-prompts
// without changing state.
func handleSelection[T any](text string, items []T, staySame turnResult, finalize func(T) (turnResult, error)) (turnResult, error) {
	if isCancel(text) {
		return turnResult{state: StateIdle, replies: []string{replyCancelled}}, nil
	}
	idx, ok := pickIndex(text, len(items))
	if !ok {
		staySame.replies = []string{replyInvalidPick}
		return staySame, nil
	}
	return finalize(items[idx])
}
