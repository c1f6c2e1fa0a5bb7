package discovery

import (
	"strconv"
	"strings"
)

// TXT record keys advertised by _companion-link._tcp services.
const (
	// TXTModel is the device model identifier (rpmd).
	TXTModel = "rpmd"

	// TXTAccessoryID is the accessory identifier (rpHA).
	TXTAccessoryID = "rpHA"

	// TXTFlags is the pairing flags bitmask in hex. Some firmware
	// advertises it lowercase.
	TXTFlags      = "rpFl"
	TXTFlagsLower = "rpfl"
)

// Pairing flag bits carried in rpFl.
const (
	// FlagPairingDisabled is set when the device refuses new pairings.
	FlagPairingDisabled = 0x02

	// FlagPINPairing is set when PIN pairing is supported.
	FlagPINPairing = 0x200
)

// ParseTXT converts zeroconf TXT strings ("key=value") into a map.
// Keys without a value map to the empty string.
func ParseTXT(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, entry := range txt {
		if entry == "" {
			continue
		}
		key, value, _ := strings.Cut(entry, "=")
		m[key] = value
	}
	return m
}

// PairingFlags extracts the rpFl bitmask from parsed TXT records.
// Returns 0 when the key is absent or malformed.
func PairingFlags(txt map[string]string) uint64 {
	raw, ok := txt[TXTFlags]
	if !ok {
		raw, ok = txt[TXTFlagsLower]
	}
	if !ok {
		return 0
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	flags, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0
	}
	return flags
}
