package dashsync

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// The error taxonomy. The first two are whole-job fatal: the job ends in
// StateFailed and no further backend writes happen. The last two are
// per-record: the record is skipped, counted in the SyncSummary, and the
// batch continues.
var (
	ErrSourceUnavailable = eris.New("source unavailable")
	ErrMalformedResponse = eris.New("malformed response")
	ErrKeyDerivation     = eris.New("key derivation failed")
	ErrBackendWrite      = eris.New("backend write failed")
)

// SourceUnavailable tags err as a connection or auth failure.
func SourceUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}

// MalformedResponse tags err as an unparsable payload. The whole fetch
// aborts; partial results are discarded, never partially yielded.
func MalformedResponse(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
}

// KeyDerivation tags err as a per-record normalization rejection.
func KeyDerivation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrKeyDerivation, err)
}

// BackendWrite tags err as a per-record backend failure.
func BackendWrite(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrBackendWrite, err)
}

// IsFatal reports whether err aborts the whole job rather than a single
// record.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrMalformedResponse)
}
