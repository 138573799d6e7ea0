// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package encoding

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrImmediateRange = errors.New("Immediate exceeds 32 bits")

// Decodes a hexidecimal string in the formats: 0xFF, 0XFF, -0x10, +0x10
func DecodeHex(s string) (int64, error) {
	negative := false

	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return 0, errors.New("Invalid hex string")
	}

	result, err := strconv.ParseUint(s[2:], 16, 64)

	if err != nil {
		return 0, err
	}

	if result > math.MaxInt64 {
		return 0, ErrImmediateRange
	}

	if negative {
		return -int64(result), nil
	}

	return int64(result), nil
}

// Decodes a base-10 string in the formats: 123, -123, +123
func DecodeInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// DecodeImmediate decodes a decimal or 0x-prefixed hexadecimal literal and
// returns its low 32 bits. Values outside [-2^31, 2^32-1] are rejected.
func DecodeImmediate(s string) (uint32, error) {
	var value int64
	var err error

	if IsHex(s) {
		value, err = DecodeHex(s)
	} else {
		value, err = DecodeInt(s)
	}

	if err != nil {
		return 0, err
	}

	if value < math.MinInt32 || value > math.MaxUint32 {
		return 0, ErrImmediateRange
	}

	return uint32(value), nil
}

func IsHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// PutDisplacement writes the low width bytes of value to dst in little-endian
// order. Width must be 1, 2 or 4.
func PutDisplacement(dst []byte, value int64, width int) {
	switch width {
	case 1:
		dst[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(value))
	default:
		panic("Invalid displacement width")
	}
}

// FitsSigned reports whether value is representable as a two's complement
// integer of the given bit count.
func FitsSigned(value int64, bitcount uint) bool {
	limit := int64(1) << (bitcount - 1)
	return value >= -limit && value < limit
}
