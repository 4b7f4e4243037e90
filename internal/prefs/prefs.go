// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prefs persists trivial UI preferences.
//
// Theme and shop display name are single overwritten scalars with
// last-write-wins semantics; reads trim whitespace and fall back to a
// default when the stored value is empty or absent.
package prefs

import (
	"log"
	"strings"

	"github.com/jeranaias/tillrun/internal/kv"
)

// Defaults used when nothing was ever stored.
const (
	DefaultTheme    = "light"
	DefaultShopName = "My Shop"
)

// Namespace keys.
const (
	themeKey    = "theme"
	shopNameKey = "shop_name"
)

// Prefs reads and writes the preference namespace.
type Prefs struct {
	store *kv.Store
}

// New creates a preference store over the given namespace.
func New(store *kv.Store) *Prefs {
	return &Prefs{store: store}
}

// Theme returns the stored theme, or DefaultTheme.
func (p *Prefs) Theme() string {
	return p.get(themeKey, DefaultTheme)
}

// SetTheme stores the theme. Empty input resets to the default.
func (p *Prefs) SetTheme(theme string) {
	p.set(themeKey, theme)
}

// ShopName returns the shop display name, or DefaultShopName.
func (p *Prefs) ShopName() string {
	return p.get(shopNameKey, DefaultShopName)
}

// SetShopName stores the shop display name. Empty input resets to the
// default.
func (p *Prefs) SetShopName(name string) {
	p.set(shopNameKey, name)
}

func (p *Prefs) get(key, fallback string) string {
	v, ok := p.store.Get(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return fallback
	}
	return v
}

func (p *Prefs) set(key, value string) {
	value = strings.TrimSpace(value)
	var err error
	if value == "" {
		err = p.store.Delete(key)
	} else {
		err = p.store.Set(key, value)
	}
	if err != nil {
		log.Printf("PREFS_WRITE_FAILED | key=%s err=%v", key, err)
	}
}
