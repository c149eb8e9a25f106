// Package envelope implements the authenticated-encryption transport
// used to carry a DKG or resharing secret share from one party to
// another over an untrusted relay. The construction mirrors NIP-44 v2:
// ECDH to a shared point, HKDF-SHA256 to a conversation key, a fresh
// per-message HKDF expansion to a ChaCha20-Poly1305 key/nonce, length
// padding, and an HMAC-SHA256 authenticator over the whole frame.
package envelope

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/wire"
)

// Version is the only envelope format this package produces or
// accepts.
const Version = 2

const hkdfSalt = "nip44-v2"

// Envelope is the wire form of an encrypted share transmission.
type Envelope struct {
	Version    byte
	Nonce      [32]byte
	Ciphertext []byte
	MAC        [32]byte
}

// Marshal encodes env for transmission over an untrusted relay.
func (env *Envelope) Marshal() ([]byte, error) {
	return wire.Marshal(env)
}

// Unmarshal decodes a wire-encoded Envelope.
func Unmarshal(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := wire.Unmarshal(data, env); err != nil {
		return nil, err
	}
	return env, nil
}

// sharedSecret computes the ECDH shared x-coordinate between a local
// secret scalar and a remote point.
func sharedSecret(secret *curve.Scalar, remote *curve.Point) [32]byte {
	shared := secret.Act(remote)
	return shared.XOnly()
}

// conversationKey derives the long-lived per-pair key from an ECDH
// shared secret via HKDF-SHA256 with the fixed NIP-44 salt.
func conversationKey(shared [32]byte) ([32]byte, error) {
	var out [32]byte
	kdf := hkdf.New(sha256.New, shared[:], []byte(hkdfSalt), nil)
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, err
	}
	return out, nil
}

// messageKeys derives the per-message ChaCha20-Poly1305 key and nonce
// from the conversation key and a fresh 32-byte message nonce, via two
// independently info-labeled HKDF expansions of the same extracted
// pseudorandom key.
func messageKeys(convKey, nonce [32]byte) (key [32]byte, aeadNonce [12]byte, err error) {
	input := make([]byte, 0, 64)
	input = append(input, convKey[:]...)
	input = append(input, nonce[:]...)

	prk := hkdf.Extract(sha256.New, input, nil)
	if _, err = io.ReadFull(hkdf.Expand(sha256.New, prk, []byte("nip44-chacha")), key[:]); err != nil {
		return
	}
	if _, err = io.ReadFull(hkdf.Expand(sha256.New, prk, []byte("nip44-nonce")), aeadNonce[:]); err != nil {
		return
	}
	return
}

func calcPaddedLen(n int) int {
	if n <= 32 {
		return 32
	}
	nextPower := 1
	for nextPower < n {
		nextPower <<= 1
	}
	chunk := nextPower / 8
	if chunk < 32 {
		chunk = 32
	}
	return ((n + chunk - 1) / chunk) * chunk
}

func padPlaintext(plaintext []byte) []byte {
	padded := calcPaddedLen(len(plaintext))
	out := make([]byte, 2+padded)
	out[0] = byte(len(plaintext) >> 8)
	out[1] = byte(len(plaintext))
	copy(out[2:], plaintext)
	return out
}

func unpadPlaintext(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, errors.New("envelope: padded plaintext too short")
	}
	n := int(padded[0])<<8 | int(padded[1])
	if n > len(padded)-2 {
		return nil, errors.New("envelope: invalid plaintext length in padding")
	}
	out := make([]byte, n)
	copy(out, padded[2:2+n])
	return out, nil
}

func mac(convKey [32]byte, version byte, nonce [32]byte, ciphertext []byte) [32]byte {
	h := hmac.New(sha256.New, convKey[:])
	h.Write([]byte{version})
	h.Write(nonce[:])
	h.Write(ciphertext)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Seal encrypts plaintext from senderSecret to recipientPub.
func Seal(senderSecret *curve.Scalar, recipientPub *curve.Point, plaintext []byte, rng io.Reader) (*Envelope, error) {
	if rng == nil {
		rng = rand.Reader
	}
	convKey, err := conversationKey(sharedSecret(senderSecret, recipientPub))
	if err != nil {
		return nil, err
	}

	var nonce [32]byte
	if _, err := io.ReadFull(rng, nonce[:]); err != nil {
		return nil, err
	}

	key, aeadNonce, err := messageKeys(convKey, nonce)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	padded := padPlaintext(plaintext)
	ciphertext := aead.Seal(nil, aeadNonce[:], padded, nil)

	return &Envelope{
		Version:    Version,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		MAC:        mac(convKey, Version, nonce, ciphertext),
	}, nil
}

// Open decrypts env, which must have been sealed by the holder of
// senderPub's secret key to recipientSecret's public key.
func Open(recipientSecret *curve.Scalar, senderPub *curve.Point, env *Envelope) ([]byte, error) {
	if env.Version != Version {
		return nil, errs.ErrAuth
	}
	convKey, err := conversationKey(sharedSecret(recipientSecret, senderPub))
	if err != nil {
		return nil, err
	}

	expected := mac(convKey, env.Version, env.Nonce, env.Ciphertext)
	if !hmac.Equal(expected[:], env.MAC[:]) {
		return nil, errs.ErrAuth
	}

	key, aeadNonce, err := messageKeys(convKey, env.Nonce)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	padded, err := aead.Open(nil, aeadNonce[:], env.Ciphertext, nil)
	if err != nil {
		return nil, errs.ErrAuth
	}
	return unpadPlaintext(padded)
}
