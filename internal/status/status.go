// Package status renders session state and decoded messages as JSON
// documents built from protobuf struct values.
package status

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/realm-paint/internal/realm"
	"github.com/omochice/realm-paint/pkg/protocol"
)

// Connection describes the socket side of a snapshot.
type Connection struct {
	URL       string
	Indicator string
	Status    string
	Name      string
}

// Snapshot combines the connection state with a session view.
func Snapshot(conn Connection, v realm.View) (*structpb.Struct, error) {
	cursors := make([]any, 0, len(v.Cursors))
	for _, c := range v.Cursors {
		cursors = append(cursors, map[string]any{
			"id":   c.ID,
			"name": c.Name,
			"x":    uint32(c.X),
			"y":    uint32(c.Y),
		})
	}

	fields := map[string]any{
		"url":       conn.URL,
		"indicator": conn.Indicator,
		"status":    conn.Status,
		"name":      conn.Name,
		"state":     v.State.String(),
		"cursors":   cursors,
	}
	if v.State == realm.Bound {
		fields["realm"] = map[string]any{
			"id":     v.RealmID,
			"name":   v.Name,
			"width":  v.Width,
			"height": v.Height,
			"layers": len(v.Layers),
		}
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	return s, nil
}

// Message converts a decoded message into a struct value. Init image data
// is summarised by its length.
func Message(msg protocol.Message) (*structpb.Struct, error) {
	if msg == nil {
		return nil, protocol.ErrNilMessage
	}

	fields := map[string]any{"type": msg.Type().String()}
	switch m := msg.(type) {
	case *protocol.Init:
		cursors := make([]any, 0, len(m.Cursors))
		for _, c := range m.Cursors {
			cursors = append(cursors, map[string]any{
				"id":   c.ID,
				"name": c.Name,
				"x":    uint32(c.X),
				"y":    uint32(c.Y),
			})
		}
		fields["width"] = uint32(m.Width)
		fields["height"] = uint32(m.Height)
		fields["layer_count"] = uint32(m.LayerCount)
		fields["name"] = m.Name
		fields["id"] = m.ID
		fields["cursors"] = cursors
		fields["image_bytes"] = len(m.ImageData)
	case *protocol.Paint:
		fields["realm"] = m.Realm
		fields["x"] = uint32(m.X)
		fields["y"] = uint32(m.Y)
		fields["color"] = colorValue(m.R, m.G, m.B, m.A)
		fields["brush_size"] = uint32(m.BrushSize)
		fields["target"] = uint32(m.Target)
	case *protocol.Clear:
		fields["realm"] = m.Realm
		fields["color"] = colorValue(m.R, m.G, m.B, m.A)
		fields["target"] = uint32(m.Target)
	case *protocol.Position:
		fields["realm"] = m.Realm
		fields["id"] = m.ID
		fields["x"] = uint32(m.X)
		fields["y"] = uint32(m.Y)
		fields["name"] = m.Name
	case *protocol.ChangeRealm:
		fields["realm"] = m.Realm
		fields["id"] = m.ID
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s message: %w", msg.Type(), err)
	}
	return s, nil
}

func colorValue(r, g, b, a uint8) map[string]any {
	return map[string]any{
		"r": uint32(r),
		"g": uint32(g),
		"b": uint32(b),
		"a": uint32(a),
	}
}

// Marshal renders s as JSON. Pretty output is indented over several lines.
func Marshal(s *structpb.Struct, pretty bool) ([]byte, error) {
	opts := protojson.MarshalOptions{}
	if pretty {
		opts.Multiline = true
		opts.Indent = "  "
	}
	data, err := opts.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return data, nil
}
