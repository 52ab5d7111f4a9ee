package fetcher

import (
	"io"

	"golang.org/x/text/encoding/charmap"
)

// Latin1Reader wraps a reader of ISO 8859-1 encoded text (the DWD CDC
// product files) and yields UTF-8.
func Latin1Reader(r io.Reader) io.Reader {
	return charmap.ISO8859_1.NewDecoder().Reader(r)
}
