// internal/services/delivery_encoder.go
package services

import (
	"strconv"
	"strings"
)

// DeliveryEncoder turns a payload URL into a Lua bootstrap chunk:
//
//	loadstring(game:HttpGet(string.char(104,116,116,112,...)))()
//
// Every byte of the URL is written as a decimal argument to string.char.
// The client decodes it by evaluating string.char over the listed bytes,
// which yields the original URL, then fetches and runs it.
//
// This is obfuscation only. Anyone holding the chunk can recover the URL, so
// the chunk must never carry secrets; short lived presigned URLs limit how
// long a leaked chunk stays useful.
type DeliveryEncoder struct{}

func NewDeliveryEncoder() *DeliveryEncoder {
	return &DeliveryEncoder{}
}

func (e *DeliveryEncoder) Encode(payloadURL string) string {
	var b strings.Builder
	b.Grow(len("loadstring(game:HttpGet(string.char()))()") + len(payloadURL)*4)

	b.WriteString("loadstring(game:HttpGet(string.char(")
	b.WriteString(byteList(payloadURL))
	b.WriteString(")))()")
	return b.String()
}

// Decode reverses Encode. It returns false if chunk was not produced by Encode.
func (e *DeliveryEncoder) Decode(chunk string) (string, bool) {
	const prefix, suffix = "loadstring(game:HttpGet(string.char(", ")))()"
	if !strings.HasPrefix(chunk, prefix) || !strings.HasSuffix(chunk, suffix) {
		return "", false
	}
	list := strings.TrimSuffix(strings.TrimPrefix(chunk, prefix), suffix)
	if list == "" {
		return "", true
	}

	parts := strings.Split(list, ",")
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		out = append(out, byte(n))
	}
	return string(out), true
}

// LoaderSnippet is the one line a user pastes into their executor. It points
// at the delivery endpoint, not at the payload.
func (e *DeliveryEncoder) LoaderSnippet(deliveryURL string) string {
	return "loadstring(game:HttpGet(" + strconv.Quote(deliveryURL) + "))()"
}

func byteList(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(s[i])))
	}
	return b.String()
}
