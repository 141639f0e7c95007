package sensor

import (
	"time"

	"github.com/calvinmclean/nora"
)

// KeyReader reads the raw state of a keypad button
type KeyReader interface {
	KeyDown(nora.Key) bool
}

var keyOrder = []nora.Key{nora.KeySelect, nora.KeyDown, nora.KeyUp, nora.KeyLeft, nora.KeyRight}

// Keypad debounces the five front panel keys
type Keypad struct {
	reader  KeyReader
	buttons map[nora.Key]*Button
}

// NewKeypad creates a Keypad. Up and Down repeat while held. The other keys
// fire once per press.
func NewKeypad(reader KeyReader, wait, repeat time.Duration) *Keypad {
	k := &Keypad{
		reader:  reader,
		buttons: map[nora.Key]*Button{},
	}
	for _, key := range keyOrder {
		b := &Button{Wait: wait}
		if key == nora.KeyUp || key == nora.KeyDown {
			b.Repeat = repeat
		}
		k.buttons[key] = b
	}
	return k
}

// Poll samples every key and returns the first that fired this tick, or
// KeyNone
func (k *Keypad) Poll(now time.Time) nora.Key {
	fired := nora.KeyNone
	for _, key := range keyOrder {
		if k.buttons[key].Update(k.reader.KeyDown(key), now) && fired == nora.KeyNone {
			fired = key
		}
	}
	return fired
}

// Held is true while the key is confirmed pressed
func (k *Keypad) Held(key nora.Key) bool {
	b, ok := k.buttons[key]
	return ok && b.Held()
}
