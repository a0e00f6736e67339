package ncmdump

import "errors"

// Failure categories for a single container. Errors are tagged at their
// origin by wrapping one of the sentinel values below; anything untagged
// (os and io failures, mostly) counts as an I/O error.
var (
	ErrConfig = errors.New("invalid configuration")
	ErrFormat = errors.New("malformed container")
	ErrCrypto = errors.New("decryption failed")
)

type Kind int

const (
	KindIO Kind = iota
	KindConfig
	KindFormat
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindFormat:
		return "format"
	case KindCrypto:
		return "crypto"
	default:
		return "io"
	}
}

// Classify reports the category of a non-nil error. Only ErrConfig aborts
// a whole run; the other kinds are scoped to the task that raised them.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrFormat):
		return KindFormat
	case errors.Is(err, ErrCrypto):
		return KindCrypto
	default:
		return KindIO
	}
}
