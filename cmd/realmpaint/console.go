package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/omochice/realm-paint/internal/realm"
)

// sender is the part of the connection manager the console drives.
type sender interface {
	Paint(ctx context.Context, x, y uint16, c realm.Color, brushSize uint16, target uint8) error
	Clear(ctx context.Context, c realm.Color, target uint8) error
	MoveCursor(ctx context.Context, x, y uint16) error
	ChangeRealm(ctx context.Context, realmID uint32) error
}

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  paint <x> <y> <r> <g> <b> <a> <size> <layer>
  clear <r> <g> <b> <a> <layer>
  move <x> <y>
  realm <id>
  status
  quit`

// action is one parsed console line.
type action func(ctx context.Context, s sender) error

// parseCommand turns a console line into an action. Empty lines yield a
// nil action. "quit" and "exit" return errQuit.
func parseCommand(line string) (action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "exit":
		return nil, errQuit
	case "paint":
		v, err := parseArgs(name, args, 16, 16, 8, 8, 8, 8, 16, 8)
		if err != nil {
			return nil, err
		}
		c := realm.Color{R: uint8(v[2]), G: uint8(v[3]), B: uint8(v[4]), A: uint8(v[5])}
		return func(ctx context.Context, s sender) error {
			return s.Paint(ctx, uint16(v[0]), uint16(v[1]), c, uint16(v[6]), uint8(v[7]))
		}, nil
	case "clear":
		v, err := parseArgs(name, args, 8, 8, 8, 8, 8)
		if err != nil {
			return nil, err
		}
		c := realm.Color{R: uint8(v[0]), G: uint8(v[1]), B: uint8(v[2]), A: uint8(v[3])}
		return func(ctx context.Context, s sender) error {
			return s.Clear(ctx, c, uint8(v[4]))
		}, nil
	case "move":
		v, err := parseArgs(name, args, 16, 16)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s sender) error {
			return s.MoveCursor(ctx, uint16(v[0]), uint16(v[1]))
		}, nil
	case "realm":
		v, err := parseArgs(name, args, 32)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s sender) error {
			return s.ChangeRealm(ctx, uint32(v[0]))
		}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

// parseArgs parses args as unsigned integers of the given bit sizes.
func parseArgs(name string, args []string, bits ...int) ([]uint64, error) {
	if len(args) != len(bits) {
		return nil, fmt.Errorf("%s: want %d arguments, got %d", name, len(bits), len(args))
	}
	out := make([]uint64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 10, bits[i])
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
