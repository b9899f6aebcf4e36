package sfp

import (
	"errors"
	"fmt"
	"strings"
)

var ErrChecksumMismatch = errors.New("sfp: CC_BASE checksum mismatch")

// ChecksumPolicy decides what a CC_BASE mismatch means to the caller.
type ChecksumPolicy string

const (
	ChecksumIgnore ChecksumPolicy = "ignore"
	ChecksumWarn   ChecksumPolicy = "warn"
	ChecksumReject ChecksumPolicy = "reject"
)

func ParseChecksumPolicy(raw string) (ChecksumPolicy, error) {
	switch p := ChecksumPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case ChecksumIgnore, ChecksumWarn, ChecksumReject:
		return p, nil
	case "":
		return ChecksumWarn, nil
	}
	return "", fmt.Errorf("sfp: unknown checksum policy %q", raw)
}

// ChecksumResult is the outcome of one explicit CC_BASE comparison.
type ChecksumResult struct {
	Computed byte
	Stored   byte
	Checked  bool
	Mismatch bool
}

// BaseChecksum is the low byte of the sum of A0 bytes 0 through 62.
func (s *SFP) BaseChecksum() byte {
	var sum byte
	for _, b := range s.PageA0[:offCCBase] {
		sum += b
	}
	return sum
}

func (s *SFP) StoredBaseChecksum() byte {
	return s.PageA0[offCCBase]
}

// VerifyBaseChecksum compares computed and stored CC_BASE. Only ChecksumReject
// turns a mismatch into an error; ChecksumWarn reports it in the result.
func (s *SFP) VerifyBaseChecksum(policy ChecksumPolicy) (ChecksumResult, error) {
	res := ChecksumResult{
		Computed: s.BaseChecksum(),
		Stored:   s.StoredBaseChecksum(),
	}
	if policy == ChecksumIgnore {
		return res, nil
	}
	res.Checked = true
	res.Mismatch = res.Computed != res.Stored
	if res.Mismatch && policy == ChecksumReject {
		return res, fmt.Errorf("%w: computed 0x%02X stored 0x%02X", ErrChecksumMismatch, res.Computed, res.Stored)
	}
	return res, nil
}
