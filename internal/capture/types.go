package capture

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/JakeFAU/cardshot/internal/item"
)

// Codec selects the output image format.
type Codec string

// Supported output codecs.
const (
	CodecJPEG Codec = "jpeg"
	CodecPNG  Codec = "png"
)

// Valid reports whether the codec is supported.
func (c Codec) Valid() bool {
	return c == CodecJPEG || c == CodecPNG
}

// Extension is the file extension (without dot) used for stored outputs.
func (c Codec) Extension() string {
	return string(c)
}

// ContentType returns the MIME type of encoded outputs.
func (c Codec) ContentType() string {
	if c == CodecPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Resolution is a pixel size.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Shot is a raw capture returned by an Instance. It only lives for a single
// task attempt.
type Shot struct {
	PNG    []byte
	Width  int
	Height int
}

// Matches reports whether the shot has exactly the given resolution.
func (s Shot) Matches(r Resolution) bool {
	return s.Width == r.Width && s.Height == r.Height
}

// Source addresses the local card page server.
type Source struct {
	Host     string
	Port     int
	Referrer string
	IDParam  string
}

// URL returns the card page for id.
func (s Source) URL(id item.ID) string {
	return s.pageURL(id.String())
}

// ProbeURL returns the page used by start-up health checks.
func (s Source) ProbeURL(attempt int) string {
	return s.pageURL(strconv.Itoa(attempt))
}

func (s Source) pageURL(id string) string {
	param := s.IDParam
	if param == "" {
		param = "tokenID"
	}
	q := url.Values{}
	q.Set(param, id)
	if s.Referrer != "" {
		q.Set("referrer", s.Referrer)
	}
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:     "/card",
		RawQuery: q.Encode(),
	}
	return u.String()
}
