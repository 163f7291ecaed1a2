package lsps2

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// PromiseLen is the width of a promise: an HMAC-SHA256 tag.
const PromiseLen = sha256.Size

// RawOpeningFeeParams is a menu entry before it has been signed by the
// server. It is used only server-internally, prior to handing the signed
// OpeningFeeParams back across the host callback boundary.
type RawOpeningFeeParams struct {
	MinFeeMsat           uint64
	Proportional         uint32
	ValidUntil           time.Time
	MinPaymentSizeMsat   uint64
	MaxPaymentSizeMsat   uint64
	MinLifetime          uint32
	MaxClientToSelfDelay uint32
}

// OpeningFeeParams is a menu entry offered to clients, authenticated by a
// promise: an HMAC-SHA256 tag over every other field under the server
// secret. A params value is authentic iff Promise equals the MAC of its
// other fields; Verify is the only way to check that.
type OpeningFeeParams struct {
	RawOpeningFeeParams
	Promise [PromiseLen]byte
}

// canonicalBytes serializes the raw fields in a fixed, deterministic byte
// layout for MAC computation. ValidUntil is encoded as Unix seconds so the
// MAC does not depend on the time.Time's monotonic reading or location.
func (p RawOpeningFeeParams) canonicalBytes() []byte {
	var buf bytes.Buffer

	var u64 [8]byte
	var u32 [4]byte

	binary.BigEndian.PutUint64(u64[:], p.MinFeeMsat)
	buf.Write(u64[:])

	binary.BigEndian.PutUint32(u32[:], p.Proportional)
	buf.Write(u32[:])

	binary.BigEndian.PutUint64(u64[:], uint64(p.ValidUntil.Unix()))
	buf.Write(u64[:])

	binary.BigEndian.PutUint64(u64[:], p.MinPaymentSizeMsat)
	buf.Write(u64[:])

	binary.BigEndian.PutUint64(u64[:], p.MaxPaymentSizeMsat)
	buf.Write(u64[:])

	binary.BigEndian.PutUint32(u32[:], p.MinLifetime)
	buf.Write(u32[:])

	binary.BigEndian.PutUint32(u32[:], p.MaxClientToSelfDelay)
	buf.Write(u32[:])

	return buf.Bytes()
}

// SignOpeningFeeParams signs raw under secret, producing an authentic
// OpeningFeeParams menu entry.
func SignOpeningFeeParams(raw RawOpeningFeeParams, secret [32]byte) OpeningFeeParams {
	return OpeningFeeParams{
		RawOpeningFeeParams: raw,
		Promise:             computePromise(raw, secret),
	}
}

// VerifyOpeningFeeParams reports whether params is authentic under secret:
// its promise must match the MAC of its other fields, and its ValidUntil
// must not already be in the past.
func VerifyOpeningFeeParams(params OpeningFeeParams, secret [32]byte) bool {
	if time.Now().After(params.ValidUntil) {
		return false
	}

	expected := computePromise(params.RawOpeningFeeParams, secret)
	return hmac.Equal(expected[:], params.Promise[:])
}

func computePromise(raw RawOpeningFeeParams, secret [32]byte) [PromiseLen]byte {
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(raw.canonicalBytes())

	var tag [PromiseLen]byte
	copy(tag[:], mac.Sum(nil))

	return tag
}
