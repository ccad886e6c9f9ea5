// Package bech32 implements the BIP173 bech32 encoding used by age keys.
// Unlike BIP173 it imposes no 90 character limit, since age secret keys are longer.
package bech32

import (
	"errors"
	"fmt"
	"strings"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= generator[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	h := strings.ToLower(hrp)
	ret := make([]byte, 0, len(h)*2+1)
	for i := 0; i < len(h); i++ {
		ret = append(ret, h[i]>>5)
	}
	ret = append(ret, 0)
	for i := 0; i < len(h); i++ {
		ret = append(ret, h[i]&31)
	}
	return ret
}

func verifyChecksum(hrp string, data []byte) bool {
	return polymod(append(hrpExpand(hrp), data...)) == 1
}

func createChecksum(hrp string, data []byte) []byte {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ 1
	ret := make([]byte, 6)
	for i := range ret {
		ret[i] = byte(mod>>uint(5*(5-i))) & 31
	}
	return ret
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var (
		acc  uint32
		bits uint
		ret  []byte
	)
	maxv := uint32(1)<<toBits - 1
	for _, value := range data {
		if uint32(value)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data range: %d", value)
		}
		acc = acc<<fromBits | uint32(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			ret = append(ret, byte(acc<<(toBits-bits)&maxv))
		}
	} else if bits >= fromBits {
		return nil, errors.New("illegal zero padding")
	} else if acc<<(toBits-bits)&maxv != 0 {
		return nil, errors.New("non-zero padding")
	}
	return ret, nil
}

func validateHRP(hrp string) error {
	if hrp == "" {
		return errors.New("empty human-readable part")
	}
	for i := 0; i < len(hrp); i++ {
		if hrp[i] < 33 || hrp[i] > 126 {
			return fmt.Errorf("invalid character in human-readable part: %q", hrp[i])
		}
	}
	if strings.ToLower(hrp) != hrp && strings.ToUpper(hrp) != hrp {
		return errors.New("mixed case human-readable part")
	}
	return nil
}

// Encode encodes 8-bit data under hrp. An uppercase hrp yields an uppercase string.
func Encode(hrp string, data []byte) (string, error) {
	if err := validateHRP(hrp); err != nil {
		return "", err
	}
	values, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(hrp)
	values = append(values, createChecksum(lower, values)...)

	var sb strings.Builder
	sb.Grow(len(lower) + 1 + len(values))
	sb.WriteString(lower)
	sb.WriteByte('1')
	for _, v := range values {
		sb.WriteByte(charset[v])
	}
	if strings.ToUpper(hrp) == hrp {
		return strings.ToUpper(sb.String()), nil
	}
	return sb.String(), nil
}

// Decode decodes a bech32 string into its hrp (case preserved) and 8-bit data.
func Decode(s string) (string, []byte, error) {
	if strings.ToLower(s) != s && strings.ToUpper(s) != s {
		return "", nil, errors.New("mixed case string")
	}
	pos := strings.LastIndex(s, "1")
	if pos < 1 || pos+7 > len(s) {
		return "", nil, errors.New("separator '1' at invalid position")
	}
	hrp := s[:pos]
	if err := validateHRP(hrp); err != nil {
		return "", nil, err
	}

	lower := strings.ToLower(s)
	data := make([]byte, 0, len(s)-pos-1)
	for i := pos + 1; i < len(lower); i++ {
		idx := strings.IndexByte(charset, lower[i])
		if idx < 0 {
			return "", nil, fmt.Errorf("invalid character in data part: %q", s[i])
		}
		data = append(data, byte(idx))
	}
	if !verifyChecksum(strings.ToLower(hrp), data) {
		return "", nil, errors.New("invalid checksum")
	}

	decoded, err := convertBits(data[:len(data)-6], 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	if decoded == nil {
		decoded = []byte{}
	}
	return hrp, decoded, nil
}
