package group

import (
	"strings"

	"juntify/internal/util"
)

// joinCodeAlphabet has 32 symbols (divides 256, so RandomToken is unbiased)
// and omits 0/O/1/I, which read ambiguously on a classroom whiteboard.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const joinCodeLength = 8

// maxCodeAttempts bounds regeneration on collision; with a 32^8 code space
// hitting it means something is wrong with the random source, not the space.
const maxCodeAttempts = 5

// NewJoinCode generates an 8-character uppercase join code.
func NewJoinCode() (string, error) {
	return util.RandomToken(joinCodeLength, joinCodeAlphabet)
}

// NormalizeJoinCode uppercases and trims; codes are matched
// case-insensitively against their stored uppercase form.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
