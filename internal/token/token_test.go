package token

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestRoundTrip(t *testing.T) {
	c := NewCodec("k1")
	for _, id := range []string{"M042", "a", "member.with-dots_and-dashes", "0001"} {
		tok, err := c.Encode(id)
		if err != nil {
			t.Fatalf("encode %q: %v", id, err)
		}
		got, err := c.Decode(tok)
		if err != nil {
			t.Fatalf("decode %q: %v", id, err)
		}
		if got != id {
			t.Errorf("decode = %q, want %q", got, id)
		}
	}
}

func TestM042Scenario(t *testing.T) {
	tok, err := NewCodec("k1").Encode("M042")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := NewCodec("k1").Decode(tok)
	if err != nil {
		t.Fatalf("decode with k1: %v", err)
	}
	if got != "M042" {
		t.Errorf("decode with k1 = %q, want %q", got, "M042")
	}

	if _, err := NewCodec("k2").Decode(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("decode with k2 err = %v, want ErrInvalidToken", err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	c := NewCodec("secret")
	a, _ := c.Encode("M1")
	b, _ := c.Encode("M1")
	if a != b {
		t.Errorf("tokens differ for same input: %q vs %q", a, b)
	}
}

func TestEncodeURLSafe(t *testing.T) {
	tok, err := NewCodec("secret").Encode("M/with?odd&chars")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.ContainsAny(tok, "+/=?&# ") {
		t.Errorf("token %q is not URL safe", tok)
	}
}

func TestEncodeEmptyID(t *testing.T) {
	if _, err := NewCodec("secret").Encode(""); err == nil {
		t.Fatal("expected error for empty member id")
	}
}

func TestDecodeSingleCharacterTamper(t *testing.T) {
	c := NewCodec("secret")
	tok, err := c.Encode("M042")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := range tok {
		repl := byte('A')
		if tok[i] == 'A' {
			repl = 'B'
		}
		tampered := tok[:i] + string(repl) + tok[i+1:]
		if _, err := c.Decode(tampered); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("tamper at %d: err = %v, want ErrInvalidToken", i, err)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	c := NewCodec("secret")
	for _, s := range []string{"", "garbage", "a.b.c", "....", "eyJhbGciOiJIUzI1NiJ9"} {
		if _, err := c.Decode(s); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Decode(%q) err = %v, want ErrInvalidToken", s, err)
		}
	}
}

func TestDecodeRejectsNoneAlgorithm(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims{MemberID: "M042"})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := NewCodec("secret").Decode(s); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestDecodeRejectsOtherHMAC(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{MemberID: "M042"})
	s, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewCodec("secret").Decode(s); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestDecodeRejectsEmptyMemberID(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{})
	s, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewCodec("secret").Decode(s); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
