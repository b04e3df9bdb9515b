package ui

import (
	"fmt"
	"strings"
)

// CommandKind identifies a command typed at the prompt
type CommandKind int

const (
	CmdSearch CommandKind = iota
	CmdRegex
	CmdFilter
	CmdTime
	CmdGoto
	CmdBookmark
	CmdBookmarks
	CmdNotify
	CmdUnnotify
	CmdNotifications
	CmdFollow
	CmdDelta
	CmdWrite
	CmdTop
	CmdBottom
	CmdHelp
	CmdQuit
)

// Command is a parsed prompt entry
type Command struct {
	Kind CommandKind
	Arg  string
}

type commandSpec struct {
	kind   CommandKind
	names  []string
	hasArg bool
	usage  string
}

var commands = []commandSpec{
	{CmdRegex, []string{"r", "regex"}, true, "/r <regex>       regex search"},
	{CmdFilter, []string{"only-show", "o"}, true, "/only-show <expr> filter lines, empty clears"},
	{CmdTime, []string{"t", "time"}, true, "/t <time>        jump to 14:30, -5m, +1h"},
	{CmdGoto, []string{"g", "go"}, true, "/g <line|mark>   go to line or bookmark"},
	{CmdBookmark, []string{"b", "bookmark"}, true, "/b [name]        toggle bookmark"},
	{CmdBookmarks, []string{"bs", "bookmarks"}, false, "/bs              list bookmarks"},
	{CmdNotify, []string{"n", "notify"}, true, "/n <pattern>     notify on new matches"},
	{CmdUnnotify, []string{"un", "unnotify"}, true, "/un <pattern>    remove a notify watch"},
	{CmdNotifications, []string{"ns", "notifications"}, false, "/ns              list notify watches"},
	{CmdFollow, []string{"f", "follow"}, false, "/f               toggle follow"},
	{CmdDelta, []string{"d", "delta"}, false, "/d               toggle time delta column"},
	{CmdWrite, []string{"w", "write"}, true, "/w [path]        write visible lines to a file"},
	{CmdTop, []string{"top"}, false, "/top             first line"},
	{CmdBottom, []string{"bottom"}, false, "/bottom          last line"},
	{CmdHelp, []string{"h", "help"}, false, "/help            this list"},
	{CmdQuit, []string{"q", "quit"}, false, "/q               quit"},
}

// ParseCommand parses prompt input. Text without a leading slash is a
// literal search.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return Command{Kind: CmdSearch, Arg: input}, nil
	}

	name, arg, _ := strings.Cut(input[1:], " ")
	arg = strings.TrimSpace(arg)
	for _, c := range commands {
		for _, n := range c.names {
			if n != name {
				continue
			}
			if !c.hasArg && arg != "" {
				return Command{}, fmt.Errorf("/%s takes no argument", name)
			}
			return Command{Kind: c.kind, Arg: arg}, nil
		}
	}
	return Command{}, fmt.Errorf("unknown command /%s", name)
}

// Usage returns one line per command
func Usage() []string {
	out := make([]string, len(commands))
	for i, c := range commands {
		out[i] = c.usage
	}
	return out
}
