// Package pool provides shared scratch buffers for frame encoding.
package pool

import "github.com/valyala/bytebufferpool"

var frames bytebufferpool.Pool

// With runs fn with a scratch buffer and releases it when fn returns, even
// if fn panics. fn must not retain b or b.B.
func With(fn func(b *bytebufferpool.ByteBuffer)) {
	b := frames.Get()
	defer frames.Put(b)
	fn(b)
}
