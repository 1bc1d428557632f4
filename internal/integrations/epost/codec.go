package epost

import (
	"bytes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/RyuaNerin/go-krypto/seed"
	"github.com/pkg/errors"
)

// testFlagField travels as a plain, unencrypted query parameter. Finding it
// inside the encrypted field map is a caller bug the codec rejects.
const testFlagField = "testYn"

// Codec turns an ordered field list into the carrier's opaque request blob:
// k=v&k=v serialization, SEED-128 ECB encryption with PKCS#7 padding, then
// URL-safe base64.
type Codec struct {
	block cipher.Block
}

// NewCodec builds a codec from the carrier-issued symmetric key. Keys
// shorter than the 16-byte SEED key size are zero-padded on the right;
// longer keys are truncated, matching the carrier's own tooling.
func NewCodec(cipherKey string) (*Codec, error) {
	if cipherKey == "" {
		return nil, errors.New("cipher key is empty")
	}
	key := make([]byte, 16)
	copy(key, cipherKey)
	block, err := seed.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "init seed cipher")
	}
	return &Codec{block: block}, nil
}

// Encode validates every field, serializes them in caller order and encrypts.
// All validation failures are collected into a single InvalidParamsError.
func (c *Codec) Encode(f *Fields) (string, error) {
	raw, err := Serialize(f)
	if err != nil {
		return "", err
	}
	ct := ecbEncrypt(c.block, pkcs7Pad([]byte(raw), c.block.BlockSize()))
	return base64.URLEncoding.EncodeToString(ct), nil
}

// Decode reverses Encode. Production code never calls it (decryption happens
// on the carrier side); it backs the round-trip tests and the mock gateway.
func (c *Codec) Decode(blob string) (string, error) {
	ct, err := base64.URLEncoding.DecodeString(blob)
	if err != nil {
		return "", errors.Wrap(err, "base64 decode")
	}
	if len(ct) == 0 || len(ct)%c.block.BlockSize() != 0 {
		return "", errors.New("ciphertext is not block-aligned")
	}
	pt := ecbDecrypt(c.block, ct)
	pt, err = pkcs7Unpad(pt, c.block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Serialize validates and joins fields as key=value&key=value, preserving
// caller order exactly.
func Serialize(f *Fields) (string, error) {
	var bad []string
	for _, p := range f.pairs {
		if p.key == testFlagField {
			bad = append(bad, fmt.Sprintf("%s (must not be inside the encrypted payload)", p.key))
			continue
		}
		switch p.kind {
		case kindNumeric:
			n, err := strconv.ParseFloat(p.value, 64)
			if err != nil || n <= 0 {
				bad = append(bad, fmt.Sprintf("%s (not a positive number: %q)", p.key, p.value))
			}
		case kindFlag:
			if p.value != "Y" && p.value != "N" {
				bad = append(bad, fmt.Sprintf("%s (flag must be Y or N, got %q)", p.key, p.value))
			}
		}
	}
	if len(bad) > 0 {
		return "", &InvalidParamsError{Fields: bad}
	}

	parts := make([]string, 0, len(f.pairs))
	for _, p := range f.pairs {
		parts = append(parts, p.key+"="+p.value)
	}
	return strings.Join(parts, "&"), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	pad := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > blockSize || pad > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, p := range b[len(b)-pad:] {
		if int(p) != pad {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-pad], nil
}

// The carrier's legacy endpoint decrypts in ECB mode; each block is
// independent.
func ecbEncrypt(block cipher.Block, pt []byte) []byte {
	bs := block.BlockSize()
	ct := make([]byte, len(pt))
	for i := 0; i < len(pt); i += bs {
		block.Encrypt(ct[i:i+bs], pt[i:i+bs])
	}
	return ct
}

func ecbDecrypt(block cipher.Block, ct []byte) []byte {
	bs := block.BlockSize()
	pt := make([]byte, len(ct))
	for i := 0; i < len(ct); i += bs {
		block.Decrypt(pt[i:i+bs], ct[i:i+bs])
	}
	return pt
}
