// Package payload builds the per-call read payload.
//
// The reading platform rejects replayed bodies: every read call must carry
// fresh timestamps, a nonce, a SHA-256 signature over them, and a trailing
// checksum computed with the platform's shift-xor hash over the sorted,
// percent-encoded field string. The builder rewrites those fields on a
// captured body while leaving the rest of the payload untouched.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/pageturn-io/pageturn/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// signingKey is the platform's fixed signature key, extracted from the
// web reader's client code.
const signingKey = "3c5c8717f3daf09iop3423zafeqoi"

// Default book and chapter pools rotated across calls.
var (
	DefaultBooks = []string{
		"36d322f07186022636daa5e", "6f932ec05dd9eb6f96f14b9",
		"43f3229071984b9343f04a4", "d7732ea0813ab7d58g0184b8",
		"3d03298058a9443d052d409", "4fc328a0729350754fc56d4",
		"a743220058a92aa746632c0", "140329d0716ce81f140468e",
		"1d9321c0718ff5e11d9afe8", "ff132750727dc0f6ff1f7b5",
		"e8532a40719c4eb7e851cbe", "9b13257072562b5c9b1c8d6",
	}
	DefaultChapters = []string{
		"ecc32f3013eccbc87e4b62e", "a87322c014a87ff679a21ea",
		"e4d32d5015e4da3b7fbb1fa", "16732dc0161679091c5aeb1",
		"8f132430178f14e45fce0f7", "c9f326d018c9f0f895fb5e4",
		"45c322601945c48cce2e120", "d3d322001ad3d9446802347",
		"65132ca01b6512bd43d90e3", "c20321001cc20ad4d76f5ae",
		"c51323901dc51ce410c121b", "aab325601eaab3238922e53",
		"9bf32f301f9bf31c7ff0a60", "c7432af0210c74d97b01b1c",
		"70e32fb021170efdf2eca12", "6f4322302126f4922f45dec",
	}
)

// Config configures a Builder. Zero values fall back to the default
// pools, the real clock, and a time-seeded random source, so tests can
// pin all three.
type Config struct {
	Books    []string
	Chapters []string
	Now      func() time.Time
	Rand     *rand.Rand
}

// Builder produces signed read payloads from a captured body.
// Not safe for concurrent use; the run is strictly sequential.
type Builder struct {
	base     map[string]any
	books    []string
	chapters []string
	now      func() time.Time
	rng      *rand.Rand

	lastCT    int64 // read interval baseline, advanced by Commit
	pendingCT int64 // ct of the most recent Next
}

// NewBuilder parses the captured request body and prepares per-call
// rewriting. The body must be a JSON object; anything else means the
// capture is not a read request.
func NewBuilder(captured []byte, cfg Config) (*Builder, error) {
	var base map[string]any
	if err := json.Unmarshal(captured, &base); err != nil {
		return nil, fmt.Errorf("%w: captured body is not a JSON object: %v", types.ErrMalformedTemplate, err)
	}

	b := &Builder{
		base:     base,
		books:    cfg.Books,
		chapters: cfg.Chapters,
		now:      cfg.Now,
		rng:      cfg.Rand,
	}
	if len(b.books) == 0 {
		b.books = DefaultBooks
	}
	if len(b.chapters) == 0 {
		b.chapters = DefaultChapters
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	// First call reports a plausible interval rather than zero.
	b.lastCT = b.now().Unix() - 30
	return b, nil
}

// Next builds the body for the next call attempt: fresh book/chapter,
// timestamps, nonce, signature and checksum.
func (b *Builder) Next() ([]byte, error) {
	data := make(map[string]any, len(b.base)+6)
	for k, v := range b.base {
		data[k] = v
	}
	delete(data, "s") // stale checksum from the capture

	data["b"] = b.books[b.rng.IntN(len(b.books))]
	data["c"] = b.chapters[b.rng.IntN(len(b.chapters))]

	ct := b.now().Unix()
	ts := ct*1000 + int64(b.rng.IntN(1000))
	rn := b.rng.IntN(1000)

	data["ct"] = ct
	data["ts"] = ts
	data["rt"] = ct - b.lastCT
	data["rn"] = rn
	data["sg"] = Signature(ts, rn)
	data["s"] = Checksum(EncodeFields(data))

	b.pendingCT = ct

	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal read payload: %w", err)
	}
	return out, nil
}

// Commit advances the read-interval baseline to the last built payload's
// timestamp. Call it after a successful read; failed calls keep the old
// baseline, matching how a real reader resumes after a hiccup.
func (b *Builder) Commit() {
	if b.pendingCT != 0 {
		b.lastCT = b.pendingCT
	}
}

// Signature returns the SHA-256 signature over timestamp, nonce and the
// platform key.
func Signature(ts int64, rn int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%d%s", ts, rn, signingKey)))
	return hex.EncodeToString(sum[:])
}

// EncodeFields renders the payload as the platform's canonical
// "k=v&k=v" string: keys sorted, values percent-encoded with no safe
// characters beyond the unreserved set.
func EncodeFields(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(percentEncode(fieldString(data[k])))
	}
	return sb.String()
}

// fieldString renders a field value the way the platform's client does:
// integers without exponent or trailing zeros, everything else verbatim.
func fieldString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// percentEncode escapes every byte outside the unreserved set
// (ALPHA / DIGIT / "-" / "." / "_" / "~"), including '/' and space.
func percentEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}
	return sb.String()
}

// Checksum implements the platform's shift-xor hash over the encoded
// field string. Two accumulators walk the string from the tail in steps
// of two, each xor-ing in a code point shifted by a position-derived
// amount, masked to 31 bits; the hex of their sum is the checksum.
func Checksum(input string) string {
	runes := []rune(input)
	length := len(runes)

	a := uint64(0x15051505)
	b := uint64(0x15051505)

	for i := length - 1; i > 0; i -= 2 {
		a = 0x7fffffff & (a ^ uint64(runes[i])<<uint((length-i)%30))
		b = 0x7fffffff & (b ^ uint64(runes[i-1])<<uint(i%30))
	}

	return strconv.FormatUint(a+b, 16)
}
