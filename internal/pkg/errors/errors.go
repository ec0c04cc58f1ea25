package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrProvider          = errors.New("provider error")
	ErrIndexUnavailable  = errors.New("vector index unavailable")
	ErrConfiguration     = errors.New("configuration error")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}

func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsIndexUnavailable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable)
}
