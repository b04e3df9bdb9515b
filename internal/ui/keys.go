package ui

import "github.com/TimelordUK/loghew/internal/config"

// Action is what a key does in normal mode
type Action int

const (
	ActNone Action = iota
	ActQuit
	ActScrollUp
	ActScrollDown
	ActPageUp
	ActPageDown
	ActTop
	ActBottom
	ActSearch
	ActCommand
	ActNextMatch
	ActPrevMatch
	ActBookmark
	ActNextMark
	ActPrevMark
	ActFollow
	ActDelta
	ActCopy
)

// KeyMap resolves key names to actions
type KeyMap map[string]Action

// NewKeyMap builds a KeyMap from config. A key bound twice keeps its first
// action in the order below.
func NewKeyMap(kb config.KeybindingConfig) KeyMap {
	km := KeyMap{}
	bind := func(a Action, keys []string) {
		for _, k := range keys {
			if _, ok := km[k]; !ok {
				km[k] = a
			}
		}
	}
	bind(ActQuit, kb.Quit)
	bind(ActScrollUp, kb.ScrollUp)
	bind(ActScrollDown, kb.ScrollDown)
	bind(ActPageUp, kb.PageUp)
	bind(ActPageDown, kb.PageDown)
	bind(ActTop, kb.Top)
	bind(ActBottom, kb.Bottom)
	bind(ActSearch, kb.Search)
	bind(ActCommand, kb.Command)
	bind(ActNextMatch, kb.NextMatch)
	bind(ActPrevMatch, kb.PrevMatch)
	bind(ActBookmark, kb.Bookmark)
	bind(ActNextMark, kb.NextMark)
	bind(ActPrevMark, kb.PrevMark)
	bind(ActFollow, kb.Follow)
	bind(ActDelta, kb.Delta)
	bind(ActCopy, kb.Copy)

	// ctrl+c always quits
	km["ctrl+c"] = ActQuit
	return km
}

// Lookup returns the action bound to key
func (km KeyMap) Lookup(key string) Action {
	return km[key]
}
