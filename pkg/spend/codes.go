package spend

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable numeric identifier for engine failures, used when an
// error has to cross a process boundary.
type Code uint8

const (
	CodeUnknown Code = iota
	CodeInvalidNullifier
	CodeInvalidAmountCommitment
	CodeInvalidMerkleProof
	CodeMalformedInput
)

var codeErrors = map[Code]error{
	CodeInvalidNullifier:        ErrInvalidNullifier,
	CodeInvalidAmountCommitment: ErrInvalidAmountCommitment,
	CodeInvalidMerkleProof:      ErrInvalidMerkleProof,
	CodeMalformedInput:          ErrMalformedInput,
}

// CodeOf maps err to its engine failure code.
func CodeOf(err error) Code {
	for code, target := range codeErrors {
		if errors.Is(err, target) {
			return code
		}
	}
	return CodeUnknown
}

// ErrorForCode rebuilds a typed error from a code and a remote message.
func ErrorForCode(code Code, msg string) error {
	target, ok := codeErrors[code]
	if !ok {
		return errors.New(msg)
	}
	msg = strings.TrimPrefix(msg, target.Error())
	msg = strings.TrimPrefix(msg, ": ")
	if msg == "" {
		return target
	}
	return fmt.Errorf("%w: %s", target, msg)
}
