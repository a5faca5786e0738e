// Package qr renders member login URLs as scannable QR code images.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/dukerupert/memberqr/internal/model"
)

// ErrEncodingFailure is returned when content cannot be rendered as a QR code.
var ErrEncodingFailure = errors.New("qr encoding failure")

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Encoder renders content to PNG at medium error correction with the standard
// four-module quiet zone.
type Encoder struct {
	Size int
}

// NewEncoder creates an Encoder producing size x size PNGs.
func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{Size: size}
}

// Render returns the PNG bytes of a QR code for content. Identical content
// produces identical bytes.
func (e *Encoder) Render(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("render qr: empty content: %w", ErrEncodingFailure)
	}
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("render qr: %v: %w", err, ErrEncodingFailure)
	}
	png, err := code.PNG(e.Size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %v: %w", err, ErrEncodingFailure)
	}
	return png, nil
}

// TokenEncoder mints the signed token embedded in each login URL.
type TokenEncoder interface {
	Encode(memberID string) (string, error)
}

// LoginCode is one member's QR login artifact.
type LoginCode struct {
	MemberID string
	Name     string
	URL      string
	PNG      []byte
}

// DataURL returns the PNG as a base64 data URL suitable for an img src.
func (c LoginCode) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.PNG)
}

// Generator composes token minting and QR rendering.
type Generator struct {
	baseURL string
	tokens  TokenEncoder
	encoder *Encoder
	logger  *slog.Logger
}

func NewGenerator(baseURL string, tokens TokenEncoder, encoder *Encoder, logger *slog.Logger) *Generator {
	return &Generator{
		baseURL: baseURL,
		tokens:  tokens,
		encoder: encoder,
		logger:  logger.With("component", "qr"),
	}
}

// LoginURL joins base and token into the secure login URL.
func LoginURL(base, tok string) string {
	return strings.TrimRight(base, "/") + "/secure-login/" + tok
}

// Mint builds the login code for a single member.
func (g *Generator) Mint(memberID string) (*LoginCode, error) {
	tok, err := g.tokens.Encode(memberID)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	url := LoginURL(g.baseURL, tok)
	png, err := g.encoder.Render(url)
	if err != nil {
		return nil, err
	}
	return &LoginCode{MemberID: memberID, URL: url, PNG: png}, nil
}

// MintAll builds login codes for every member. Members whose code cannot be
// produced are logged and skipped; the number skipped is returned.
func (g *Generator) MintAll(members []model.Member) ([]LoginCode, int) {
	codes := make([]LoginCode, 0, len(members))
	skipped := 0
	for _, m := range members {
		code, err := g.Mint(m.ID)
		if err != nil {
			g.logger.Warn("skip qr code", "member_id", m.ID, "error", err)
			skipped++
			continue
		}
		code.Name = m.Name
		codes = append(codes, *code)
	}
	return codes, skipped
}
