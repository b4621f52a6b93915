package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// format names one of the payload interpretations the reference host
// tool documents for -i/-o (spec §6). All multi-byte integers are
// little-endian on the wire (spec §9).
type format int

const (
	formatHex format = iota
	formatRaw
	formatBin
	formatByte
	formatInt16
	formatInt32
	formatInt64
	formatFloat
)

func parseFormat(s string) (format, error) {
	switch strings.ToLower(s) {
	case "hex":
		return formatHex, nil
	case "raw":
		return formatRaw, nil
	case "bin":
		return formatBin, nil
	case "byte":
		return formatByte, nil
	case "int16":
		return formatInt16, nil
	case "int32":
		return formatInt32, nil
	case "int64":
		return formatInt64, nil
	case "float":
		return formatFloat, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

// encodePayload turns a textual argument (or, for Raw, the argument
// bytes verbatim) into wire bytes per f, splitting on sep for the
// multi-value formats the way -si documents.
func encodePayload(f format, arg, sep string) ([]byte, error) {
	if f == formatRaw {
		return []byte(arg), nil
	}
	if f == formatHex {
		return hex.DecodeString(strings.ReplaceAll(arg, sep, ""))
	}

	var out []byte
	for _, tok := range strings.Split(arg, sep) {
		if tok == "" {
			continue
		}
		switch f {
		case formatBin:
			v, err := strconv.ParseUint(tok, 2, 8)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(v))
		case formatByte:
			v, err := strconv.ParseUint(tok, 10, 8)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(v))
		case formatInt16:
			v, err := strconv.ParseInt(tok, 10, 16)
			if err != nil {
				return nil, err
			}
			b := make([]byte, 2)
			binary.LittleEndian.PutUint16(b, uint16(v))
			out = append(out, b...)
		case formatInt32:
			v, err := strconv.ParseInt(tok, 10, 32)
			if err != nil {
				return nil, err
			}
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, uint32(v))
			out = append(out, b...)
		case formatInt64:
			v, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return nil, err
			}
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, uint64(v))
			out = append(out, b...)
		case formatFloat:
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return nil, err
			}
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
			out = append(out, b...)
		default:
			return nil, fmt.Errorf("unsupported input format")
		}
	}
	return out, nil
}

// decodePayload renders wire bytes as text per f, for printing a reply.
func decodePayload(f format, data []byte, sep string) (string, error) {
	switch f {
	case formatRaw:
		return string(data), nil
	case formatHex:
		return hex.EncodeToString(data), nil
	case formatBin:
		parts := make([]string, len(data))
		for i, b := range data {
			parts[i] = strconv.FormatUint(uint64(b), 2)
		}
		return strings.Join(parts, sep), nil
	case formatByte:
		parts := make([]string, len(data))
		for i, b := range data {
			parts[i] = strconv.FormatUint(uint64(b), 10)
		}
		return strings.Join(parts, sep), nil
	case formatInt16:
		return joinFixedWidth(data, 2, sep, func(b []byte) string {
			return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(b))), 10)
		})
	case formatInt32:
		return joinFixedWidth(data, 4, sep, func(b []byte) string {
			return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10)
		})
	case formatInt64:
		return joinFixedWidth(data, 8, sep, func(b []byte) string {
			return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10)
		})
	case formatFloat:
		return joinFixedWidth(data, 4, sep, func(b []byte) string {
			return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32)
		})
	default:
		return "", fmt.Errorf("unsupported output format")
	}
}

func joinFixedWidth(data []byte, width int, sep string, render func([]byte) string) (string, error) {
	if len(data)%width != 0 {
		return "", fmt.Errorf("payload length %d is not a multiple of %d", len(data), width)
	}
	var parts []string
	for i := 0; i+width <= len(data); i += width {
		parts = append(parts, render(data[i:i+width]))
	}
	return strings.Join(parts, sep), nil
}
