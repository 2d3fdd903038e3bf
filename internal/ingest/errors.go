package ingest

import (
	"errors"

	"github.com/imrishuroy/go-mailorder-bridge/internal/parser"
)

func isParseError(err error) bool { return errors.Is(err, parser.ErrParse) }

// Retryable reports whether redelivering the payload may succeed.
func Retryable(err error) bool {
	return err != nil && !isParseError(err)
}
