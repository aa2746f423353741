package image

import "encoding/base64"

// CapturedImage is the raw photo handed over by the picker. It lives in
// memory only for the duration of one report draft.
type CapturedImage struct {
	Data     []byte
	MimeType string
}

// CompressedPayload is the bounded-size JPEG rendition of a captured photo,
// together with the quality the encoder settled on.
type CompressedPayload struct {
	Data    []byte
	Quality int
	Width   int
	Height  int
}

const dataURLPrefix = "data:image/jpeg;base64,"

// DataURL renders the payload in the form the delivery channel expects.
func (p *CompressedPayload) DataURL() string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString(p.Data)
}

// TransportSize is the byte length of the data URL representation. The
// compression budget applies to this, not to the raw JPEG bytes, because the
// data URL is what travels over the delivery channel.
func (p *CompressedPayload) TransportSize() int {
	return len(dataURLPrefix) + base64.StdEncoding.EncodedLen(len(p.Data))
}
