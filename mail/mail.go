// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

const NoSubject = "(no subject)"

type HeaderInfo struct {
	SenderEmail string
	SenderName  string
	Subject     string
	// Date is zero when the header is missing or unparseable
	Date time.Time
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: charset.Reader,
}

// ParseHeaders decodes the From, Subject and Date fields of a raw header block
// as returned by a HEADER.FIELDS fetch.
func ParseHeaders(rawHeader []byte) (*HeaderInfo, error) {
	if !bytes.HasSuffix(rawHeader, []byte("\r\n\r\n")) && !bytes.HasSuffix(rawHeader, []byte("\n\n")) {
		rawHeader = append(append([]byte{}, rawHeader...), '\r', '\n', '\r', '\n')
	}

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(rawHeader)))
	if err != nil {
		return nil, fmt.Errorf("could not parse header: %w", err)
	}
	header := gomail.Header{Header: message.Header{Header: h}}

	from := DecodeHeader(header.Get("From"))
	info := &HeaderInfo{
		SenderEmail: SenderEmail(from),
		SenderName:  SenderName(from),
		Subject:     DecodeHeader(header.Get("Subject")),
	}
	if addresses, err := header.AddressList("From"); err == nil && len(addresses) > 0 {
		info.SenderEmail = strings.ToLower(addresses[0].Address)
		if len(addresses[0].Name) > 0 {
			info.SenderName = addresses[0].Name
		} else {
			info.SenderName = info.SenderEmail
		}
	}
	if !header.Has("Subject") {
		info.Subject = NoSubject
	}

	if header.Has("Date") {
		if date, err := header.Date(); err == nil {
			info.Date = date
		}
	}

	return info, nil
}

// DecodeHeader decodes RFC 2047 encoded words. Undecodable input is returned
// unchanged.
func DecodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}

func SenderEmail(from string) string {
	if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return strings.ToLower(strings.TrimSpace(from[start+1 : start+end]))
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}

func SenderName(from string) string {
	if idx := strings.Index(from, "<"); idx >= 0 {
		name := strings.Trim(strings.TrimSpace(from[:idx]), `"'`)
		if len(name) == 0 {
			return SenderEmail(from)
		}
		return name
	}
	return strings.TrimSpace(from)
}

// SenderDomain returns the part after the last @ of a lower-cased address.
func SenderDomain(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return ""
	}
	return email[idx+1:]
}

// BodyPreview returns the first maxChars characters of the first text/plain
// part of a raw message. Single part messages use their only body. Unreadable
// messages yield an empty preview.
func BodyPreview(rawMail []byte, maxChars int) string {
	r, err := gomail.CreateReader(bytes.NewReader(rawMail))
	if err != nil && !message.IsUnknownCharset(err) {
		return ""
	}
	if r == nil {
		return ""
	}
	defer r.Close()

	for {
		p, err := r.NextPart()
		if err == io.EOF {
			return ""
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return ""
		}

		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil && len(h.Get("Content-Type")) > 0 {
			continue
		}
		if len(contentType) > 0 && contentType != "text/plain" {
			continue
		}

		body, err := ioutil.ReadAll(p.Body)
		if err != nil {
			return ""
		}
		return truncateRunes(strings.ToValidUTF8(string(body), "�"), maxChars)
	}
}

func truncateRunes(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}

func ShortSubject(subject string) string {
	if utf8.RuneCountInString(subject) > 30 {
		subject = string([]rune(subject)[:30]) + "..."
	}
	return subject
}

var (
	replyPrefix = regexp.MustCompile(`(?i)^(Re|Fwd|FW|Fw)\s*:\s*`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// NormaliseSubject strips one leading reply/forward prefix and collapses
// whitespace.
func NormaliseSubject(subject string) string {
	subject = strings.TrimSpace(replyPrefix.ReplaceAllString(strings.TrimSpace(subject), ""))
	return whitespace.ReplaceAllString(subject, " ")
}

// FirstNWords returns the first n whitespace separated words in lower case.
func FirstNWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.ToLower(strings.Join(words, " "))
}

// Jaccard is the word level Jaccard similarity of two strings, 0 when either
// is empty.
func Jaccard(a, b string) float64 {
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
