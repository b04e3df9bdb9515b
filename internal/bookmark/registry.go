// Package bookmark keeps named line markers for a session.
package bookmark

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/TimelordUK/loghew/internal/errs"
)

// Bookmark marks one line
type Bookmark struct {
	Name      string
	Line      int
	CreatedAt time.Time
}

// Registry holds at most one bookmark per line, with unique names
type Registry struct {
	byLine map[int]*Bookmark
	byName map[string]*Bookmark
	now    func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byLine: make(map[int]*Bookmark),
		byName: make(map[string]*Bookmark),
		now:    time.Now,
	}
}

// Len returns the number of bookmarks
func (r *Registry) Len() int {
	return len(r.byLine)
}

// Add bookmarks line. An empty name defaults to the line number. A
// bookmark already on the line is renamed. It fails with
// errs.ErrDuplicateName when another line holds the name.
func (r *Registry) Add(line int, name string) (Bookmark, error) {
	name, err := r.resolveName(line, name)
	if err != nil {
		return Bookmark{}, err
	}
	if other, ok := r.byName[name]; ok && other.Line != line {
		return Bookmark{}, fmt.Errorf("bookmark %q is on line %d: %w", name, other.Line, errs.ErrDuplicateName)
	}

	if old, ok := r.byLine[line]; ok {
		delete(r.byName, old.Name)
	}
	b := &Bookmark{Name: name, Line: line, CreatedAt: r.now()}
	r.byLine[line] = b
	r.byName[name] = b
	return *b, nil
}

func (r *Registry) resolveName(line int, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return strconv.Itoa(line), nil
	}
	if n, err := strconv.Atoi(name); err == nil && n != line {
		return "", fmt.Errorf("bookmark name %q: %w", name, errs.ErrInvalidName)
	}
	return name, nil
}

// Toggle removes the bookmark on line if there is one, else adds it. It
// reports whether the line is bookmarked afterwards.
func (r *Registry) Toggle(line int, name string) (Bookmark, bool, error) {
	if old, ok := r.byLine[line]; ok {
		r.remove(old)
		return *old, false, nil
	}
	b, err := r.Add(line, name)
	if err != nil {
		return Bookmark{}, false, err
	}
	return b, true, nil
}

// Remove deletes the bookmark with the given name or on the given line
func (r *Registry) Remove(nameOrLine string) (Bookmark, error) {
	b, err := r.lookup(nameOrLine)
	if err != nil {
		return Bookmark{}, err
	}
	r.remove(b)
	return *b, nil
}

func (r *Registry) remove(b *Bookmark) {
	delete(r.byLine, b.Line)
	delete(r.byName, b.Name)
}

// Lookup finds a bookmark by name, or by line when the argument is a
// number. It fails with errs.ErrOutOfRange.
func (r *Registry) Lookup(nameOrLine string) (Bookmark, error) {
	b, err := r.lookup(nameOrLine)
	if err != nil {
		return Bookmark{}, err
	}
	return *b, nil
}

func (r *Registry) lookup(nameOrLine string) (*Bookmark, error) {
	key := strings.TrimSpace(nameOrLine)
	if b, ok := r.byName[key]; ok {
		return b, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		if b, ok := r.byLine[n]; ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no bookmark %q: %w", key, errs.ErrOutOfRange)
}

// At returns the bookmark on line, if any
func (r *Registry) At(line int) (Bookmark, bool) {
	b, ok := r.byLine[line]
	if !ok {
		return Bookmark{}, false
	}
	return *b, true
}

// List returns bookmarks ordered by line
func (r *Registry) List() []Bookmark {
	list := make([]Bookmark, 0, len(r.byLine))
	for _, b := range r.byLine {
		list = append(list, *b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Line < list[j].Line })
	return list
}

// Next returns the first bookmark after line, wrapping to the first one
func (r *Registry) Next(line int) (Bookmark, bool) {
	list := r.List()
	if len(list) == 0 {
		return Bookmark{}, false
	}
	for _, b := range list {
		if b.Line > line {
			return b, true
		}
	}
	return list[0], true
}

// Prev returns the last bookmark before line, wrapping to the last one
func (r *Registry) Prev(line int) (Bookmark, bool) {
	list := r.List()
	if len(list) == 0 {
		return Bookmark{}, false
	}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Line < line {
			return list[i], true
		}
	}
	return list[len(list)-1], true
}
