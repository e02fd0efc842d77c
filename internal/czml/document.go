package czml

import (
	"encoding/json"
	"io"

	"github.com/star/czmlgo/internal/epoch"
)

// DocumentID is the id CZML reserves for the document packet.
const DocumentID = "document"

// Document returns a complete CZML document: the document packet with a clock
// looping over clock, followed by packets.
func Document(name string, clock epoch.Interval, packets ...Packet) []Packet {
	out := make([]Packet, 0, len(packets)+1)
	out = append(out, DocumentPacket(name, clock))
	return append(out, packets...)
}

// DocumentPacket returns the header packet of a CZML document.
func DocumentPacket(name string, clock epoch.Interval) Packet {
	return Packet{
		ID:      DocumentID,
		Name:    name,
		Version: "1.0",
		Clock: &Clock{
			Interval:    clock.String(),
			CurrentTime: epoch.FormatISO(clock.Start),
			Multiplier:  1,
			Range:       "LOOP_STOP",
			Step:        "SYSTEM_CLOCK_MULTIPLIER",
		},
	}
}

// EventGroup returns the parent packet that EventPackets' packets hang under.
func EventGroup(window epoch.Interval) Packet {
	iv := window.String()
	return Packet{
		ID:          iv,
		Name:        "Event",
		Description: "List of Event during:" + iv,
	}
}

// Encode writes packets as a CZML JSON array.
func Encode(w io.Writer, packets []Packet) error {
	if packets == nil {
		packets = []Packet{}
	}
	return json.NewEncoder(w).Encode(packets)
}
