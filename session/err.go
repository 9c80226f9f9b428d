package session

import (
	"errors"

	"github.com/hymnsim/hymn/translate"
)

var f = translate.From

var (
	ErrSessionNotFound = errors.New(f("no such session"))
	ErrNoProgram       = errors.New(f("no program loaded"))
	ErrStoreClosed     = errors.New(f("store is closed"))
)
