package encoder

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// ParsePayload parses a comma and/or space separated list of byte values. Each
// value may be decimal, hex (0x15), octal (0o25) or binary (0b10101). Leading
// zeros on a decimal value are ignored so 010 is ten.
func ParsePayload(s string) ([]uint8, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]uint8, 0, len(fields))
	for _, f := range fields {
		v, err := cast.ToIntE(trimDecimal(f))
		if err != nil {
			return nil, errors.Wrapf(err, "payload value %q", f)
		}
		if v < 0 || v > 0xFF {
			return nil, errors.Errorf("payload value %q doesn't fit in a byte", f)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

// trimDecimal strips leading zeros from an all digit value which cast would
// otherwise parse as octal.
func trimDecimal(f string) string {
	if strings.TrimLeft(f, "0123456789") != "" {
		return f
	}
	if t := strings.TrimLeft(f, "0"); t != "" {
		return t
	}
	return "0"
}
