// Package tray shows the editor menu in the system tray using getlantern/systray.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// MenuItem is one entry of the tray menu
type MenuItem struct {
	ID       int
	Title    string
	Callback func()
	item     *systray.MenuItem
}

// Tray manages the tray icon and menu. Items are added before Run.
type Tray struct {
	title   string
	tooltip string
	mu      sync.Mutex
	items   []*MenuItem
	quitCh  chan struct{}
}

// New creates a tray with the given title and tooltip
func New(title, tooltip string) *Tray {
	return &Tray{
		title:   title,
		tooltip: tooltip,
		quitCh:  make(chan struct{}),
	}
}

// AddMenuItem adds an item calling callback when clicked and returns its id
func (t *Tray) AddMenuItem(title string, callback func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := len(t.items)
	t.items = append(t.items, &MenuItem{ID: id, Title: title, Callback: callback})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

// SetItemTitle changes the label of an item, for example to show the last export status
func (t *Tray) SetItemTitle(id int, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return
	}
	t.items[id].Title = title
	if t.items[id].item != nil {
		t.items[id].item.SetTitle(title)
	}
}

// SetItemChecked sets the checked state of a menu item
func (t *Tray) SetItemChecked(id int, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil || t.items[id].item == nil {
		return
	}
	if checked {
		t.items[id].item.Check()
	} else {
		t.items[id].item.Uncheck()
	}
}

// Items returns the titles of the menu, with "" for separators
func (t *Tray) Items() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	titles := make([]string, len(t.items))
	for i, mi := range t.items {
		if mi != nil {
			titles[i] = mi.Title
		}
	}
	return titles
}

// Run starts the tray event loop (blocks until Stop)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(icon())

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, menuItem := range t.items {
		if menuItem == nil {
			systray.AddSeparator()
			continue
		}
		menuItem.item = systray.AddMenuItem(menuItem.Title, "")
		if menuItem.Callback == nil {
			menuItem.item.Disable()
			continue
		}

		// Handle clicks in goroutine
		go func(mi *MenuItem, clicked chan struct{}) {
			for {
				select {
				case <-clicked:
					mi.Callback()
				case <-t.quitCh:
					return
				}
			}
		}(menuItem, menuItem.item.ClickedCh)
	}
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// icon returns a 16x16 32-bit ICO with a filled square
func icon() []byte {
	const pixels = 16 * 16 * 4
	ico := make([]byte, 0, 62+pixels+64)

	// ICO header and directory entry
	ico = append(ico, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00)
	ico = append(ico,
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x68, 0x04, 0x00, 0x00, // bytes in resource: 40 + 1024 + 64
		0x16, 0x00, 0x00, 0x00, // offset
	)
	// DIB header, height doubled for the mask
	ico = append(ico,
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	)
	// BGRA pixels: indigo square with a transparent border
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x == 0 || y == 0 || x == 15 || y == 15 {
				ico = append(ico, 0, 0, 0, 0)
				continue
			}
			ico = append(ico, 0xea, 0x7e, 0x66, 0xff)
		}
	}
	// AND mask, rows padded to 32 bits
	ico = append(ico, make([]byte, 64)...)
	return ico
}
