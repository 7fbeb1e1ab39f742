package streams

import (
	"fmt"
)

// ReadableEvent names an event emitted by a [Readable].
type ReadableEvent uint8

const (
	ReadableEventData ReadableEvent = iota + 1
	ReadableEventEnd
	ReadableEventError
	ReadableEventOpen
	ReadableEventClose
)

var readableEvents = map[string]ReadableEvent{
	`data`:  ReadableEventData,
	`end`:   ReadableEventEnd,
	`error`: ReadableEventError,
	`open`:  ReadableEventOpen,
	`close`: ReadableEventClose,
}

// ParseReadableEvent returns the event with the given script name.
func ParseReadableEvent(name string) (ReadableEvent, bool) {
	e, ok := readableEvents[name]
	return e, ok
}

func (e ReadableEvent) String() string {
	for name, v := range readableEvents {
		if v == e {
			return name
		}
	}
	return fmt.Sprintf("ReadableEvent(%d)", uint8(e))
}

// WritableEvent names an event emitted by a [Writable].
type WritableEvent uint8

const (
	WritableEventDrain WritableEvent = iota + 1
	WritableEventFinish
	WritableEventError
	WritableEventOpen
	WritableEventClose
)

var writableEvents = map[string]WritableEvent{
	`drain`:  WritableEventDrain,
	`finish`: WritableEventFinish,
	`error`:  WritableEventError,
	`open`:   WritableEventOpen,
	`close`:  WritableEventClose,
}

// ParseWritableEvent returns the event with the given script name.
func ParseWritableEvent(name string) (WritableEvent, bool) {
	e, ok := writableEvents[name]
	return e, ok
}

func (e WritableEvent) String() string {
	for name, v := range writableEvents {
		if v == e {
			return name
		}
	}
	return fmt.Sprintf("WritableEvent(%d)", uint8(e))
}
