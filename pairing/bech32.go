package pairing

import (
	"fmt"
	"strings"
)

// Minimal BIP-173 bech32 codec. None of the example stack carries a bech32
// dependency (the closest, mr-tron/base58, is a different encoding), and the
// pairing URI's "npub"/"nsec"-style fields are a thin boundary concern, so
// this is hand-rolled rather than reached for over the network.

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		out = append(out, byte(c)>>5)
	}
	out = append(out, 0)
	for _, c := range hrp {
		out = append(out, byte(c)&31)
	}
	return out
}

func bech32CreateChecksum(hrp string, data []byte) []byte {
	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := bech32Polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func bech32VerifyChecksum(hrp string, data []byte) bool {
	return bech32Polymod(append(bech32HRPExpand(hrp), data...)) == 1
}

// convertBits regroups a byte slice between bit widths, as required to map
// 8-bit key material onto 5-bit bech32 symbols and back.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	var out []byte
	maxV := uint32(1)<<toBits - 1
	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data range for convertBits")
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits)&byte(maxV))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits))&byte(maxV))
		}
	} else if bits >= fromBits || (acc<<(toBits-bits))&maxV != 0 {
		return nil, fmt.Errorf("invalid padding in convertBits")
	}
	return out, nil
}

// bech32Encode encodes raw bytes (e.g. a 32-byte pubkey or scalar) under the
// given human-readable prefix ("npub", "nsec").
func bech32Encode(hrp string, raw []byte) (string, error) {
	data, err := convertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	checksum := bech32CreateChecksum(hrp, data)
	data = append(data, checksum...)

	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, d := range data {
		sb.WriteByte(bech32Charset[d])
	}
	return sb.String(), nil
}

// bech32Decode reverses bech32Encode, returning the human-readable prefix
// and the decoded raw bytes.
func bech32Decode(s string) (hrp string, raw []byte, err error) {
	s = strings.ToLower(s)
	pos := strings.LastIndexByte(s, '1')
	if pos < 1 || pos+7 > len(s) {
		return "", nil, fmt.Errorf("invalid bech32 string: %q", s)
	}
	hrp = s[:pos]
	dataPart := s[pos+1:]

	data := make([]byte, len(dataPart))
	for i, c := range dataPart {
		idx := strings.IndexByte(bech32Charset, byte(c))
		if idx < 0 {
			return "", nil, fmt.Errorf("invalid bech32 character %q", c)
		}
		data[i] = byte(idx)
	}
	if !bech32VerifyChecksum(hrp, data) {
		return "", nil, fmt.Errorf("invalid bech32 checksum")
	}
	raw, err = convertBits(data[:len(data)-6], 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, raw, nil
}
