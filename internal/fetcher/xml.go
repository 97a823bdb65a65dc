package fetcher

import (
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// newXMLDecoder returns a decoder that understands any charset declared in
// the XML prolog, not only UTF-8.
func newXMLDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}

// DecodeXMLObject decodes a single XML document into T.
func DecodeXMLObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := newXMLDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "xml: decode object")
	}
	return &obj, nil
}
