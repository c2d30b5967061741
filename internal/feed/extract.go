package feed

import (
	"encoding/json"
)

// Event is what a migration frame yields: the token mint address plus, when
// the event carries one, the pool it migrated into.
type Event struct {
	TokenAddress string
	PoolAddress  string
	Dex          string
}

var tokenKeys = []string{"mint", "address", "tokenAddress"}
var poolKeys = []string{"pool", "poolAddress", "pairAddress"}
var dexKeys = []string{"dex", "source"}

// defaultDex labels pools when the event does not name the venue; migrations
// land on Raydium unless the feed says otherwise.
const defaultDex = "raydium"

// Extract parses a text frame and pulls out the migration event. The token
// address is the first present of mint, address, tokenAddress, looked up at
// the top level and one level under "data". Frames without a plausible
// address return ok=false; they are never an error.
func Extract(frame []byte) (Event, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(frame, &doc); err != nil {
		return Event{}, false
	}

	if event, ok := extractFrom(doc); ok {
		return event, true
	}
	if nested, ok := doc["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			return extractFrom(inner)
		}
	}
	return Event{}, false
}

func extractFrom(doc map[string]json.RawMessage) (Event, bool) {
	event := Event{Dex: defaultDex}

	for _, key := range tokenKeys {
		if addr, ok := stringField(doc, key); ok && PlausibleAddress(addr) {
			event.TokenAddress = addr
			break
		}
	}
	if event.TokenAddress == "" {
		return Event{}, false
	}

	for _, key := range poolKeys {
		if addr, ok := stringField(doc, key); ok && PlausibleAddress(addr) {
			event.PoolAddress = addr
			break
		}
	}
	for _, key := range dexKeys {
		if dex, ok := stringField(doc, key); ok && dex != "" {
			event.Dex = dex
			break
		}
	}
	return event, true
}

func stringField(doc map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := doc[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// PlausibleAddress reports whether s looks like a base58 Solana address:
// 32 to 44 characters from the base58 alphabet.
func PlausibleAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '1' && r <= '9':
		case r >= 'A' && r <= 'H':
		case r >= 'J' && r <= 'N':
		case r >= 'P' && r <= 'Z':
		case r >= 'a' && r <= 'k':
		case r >= 'm' && r <= 'z':
		default:
			return false
		}
	}
	return true
}
