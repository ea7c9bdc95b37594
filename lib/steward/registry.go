// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package steward

import "sync"

// Registry maps server names to their current bot. A server between
// connections has no bot.
type Registry struct {
	mu    sync.RWMutex
	names []string
	bots  map[string]*Bot
}

// NewRegistry creates a registry for the named servers, in display
// order.
func NewRegistry(names ...string) *Registry {
	return &Registry{names: names, bots: make(map[string]*Bot, len(names))}
}

// Set records bot as the live bot for name; nil marks it disconnected.
func (r *Registry) Set(name string, bot *Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bot == nil {
		delete(r.bots, name)
		return
	}
	r.bots[name] = bot
}

// Get returns the live bot for name.
func (r *Registry) Get(name string) (*Bot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bot, ok := r.bots[name]
	return bot, ok
}

// Names returns every registered server name.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
