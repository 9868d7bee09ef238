package process

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// lookupEncoding resolves an IANA charset name to its encoding.
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, &EncodingError{Encoding: name, Err: fmt.Errorf("unknown encoding")}
	}
	return enc, nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

// decode converts raw child output to a string under the configured
// encoding. Invalid input surfaces an EncodingError rather than being
// silently replaced.
func (p *Process) decode(data []byte) (string, error) {
	name := p.cfg.Encoding
	if isUTF8(name) {
		if !utf8.Valid(data) {
			return "", &EncodingError{Encoding: name, Err: fmt.Errorf("invalid byte sequence")}
		}
		return string(data), nil
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", &EncodingError{Encoding: name, Err: err}
	}
	return string(out), nil
}

// encode converts a string to the raw bytes the child expects.
func (p *Process) encode(s string) ([]byte, error) {
	name := p.cfg.Encoding
	if isUTF8(name) {
		if !utf8.ValidString(s) {
			return nil, &EncodingError{Encoding: name, Err: fmt.Errorf("invalid byte sequence")}
		}
		return []byte(s), nil
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, &EncodingError{Encoding: name, Err: err}
	}
	return out, nil
}

// ReadString is Read decoded under the configured encoding.
func (p *Process) ReadString(max int) (string, error) {
	data, err := p.Read(max)
	if err != nil {
		return "", err
	}
	return p.decode(data)
}

// ReadLineString is ReadLine decoded under the configured encoding.
func (p *Process) ReadLineString(limit int) (string, error) {
	data, err := p.ReadLine(limit)
	if err != nil {
		return "", err
	}
	return p.decode(data)
}

// ReadErrorString is ReadError decoded under the configured encoding.
func (p *Process) ReadErrorString(max int) (string, error) {
	data, err := p.ReadError(max)
	if err != nil {
		return "", err
	}
	return p.decode(data)
}

// WriteString encodes s under the configured encoding and writes it to
// the child's stdin.
func (p *Process) WriteString(s string) (int, error) {
	data, err := p.encode(s)
	if err != nil {
		return 0, err
	}
	return p.Write(data)
}
