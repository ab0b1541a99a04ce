package utils

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// AlignDown rounds val down to a multiple of align, which must be a power of two.
func AlignDown[T Unsigned](val, align T) T {
	return val &^ (align - 1)
}

func AlignUp[T Unsigned](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}

func HexRange(start, end uint32) string {
	return fmt.Sprintf("%#010X-%#010X", start, end)
}

func Assert(condition bool, msg string) {
	if !condition {
		panic("assertion failed: " + msg)
	}
}

// NewLogger returns a logfmt logger that drops entries below lvl.
func NewLogger(w io.Writer, lvl string) (log.Logger, error) {
	var opt level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		opt = level.AllowDebug()
	case "", "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, errors.Errorf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC), nil
}
