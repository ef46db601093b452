package viewer

import (
	"github.com/veandco/go-sdl2/sdl"
)

// EventType is the kind of an input event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Key    Key
	Width  int
	Height int
}

// Input polls SDL events.
type Input struct {
	events []Event
}

// NewInput creates a new input handler.
func NewInput() *Input {
	return &Input{
		events: make([]Event, 0, 16),
	}
}

// Update polls SDL events and converts them to viewer events.
// Returns true if the viewer should quit.
func (i *Input) Update() bool {
	i.events = i.events[:0] // Clear previous events

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			i.events = append(i.events, Event{Type: EventQuit})
			return true

		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_RESIZED {
				i.events = append(i.events, Event{
					Type:   EventWindowResize,
					Width:  int(e.Data1),
					Height: int(e.Data2),
				})
			}

		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN {
				continue
			}
			if key := keyFromScancode(e.Keysym.Scancode); key != KeyNone {
				i.events = append(i.events, Event{Type: EventKeyDown, Key: key})
			}
		}
	}

	return false
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}

func keyFromScancode(sc sdl.Scancode) Key {
	switch sc {
	case sdl.SCANCODE_ESCAPE, sdl.SCANCODE_Q:
		return KeyQuit
	case sdl.SCANCODE_TAB, sdl.SCANCODE_M:
		return KeyNextMode
	case sdl.SCANCODE_LEFT:
		return KeyAzimuthDown
	case sdl.SCANCODE_RIGHT:
		return KeyAzimuthUp
	case sdl.SCANCODE_UP:
		return KeySunUp
	case sdl.SCANCODE_DOWN:
		return KeySunDown
	case sdl.SCANCODE_PAGEUP:
		return KeySliceUp
	case sdl.SCANCODE_PAGEDOWN:
		return KeySliceDown
	case sdl.SCANCODE_EQUALS, sdl.SCANCODE_KP_PLUS:
		return KeyExposureUp
	case sdl.SCANCODE_MINUS, sdl.SCANCODE_KP_MINUS:
		return KeyExposureDown
	case sdl.SCANCODE_P:
		return KeyProjection
	case sdl.SCANCODE_L:
		return KeyLuminance
	case sdl.SCANCODE_R:
		return KeyRecompute
	case sdl.SCANCODE_C:
		return KeyCancel
	case sdl.SCANCODE_S:
		return KeySave
	}
	return KeyNone
}
