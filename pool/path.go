// Package pool provides pooled builders for the instance paths carried by
// decode errors ("Patient.contact[0].name").
package pool

import (
	"strconv"
	"sync"
)

// maxPooledCap keeps unusually long paths from pinning large buffers.
const maxPooledCap = 4096

// PathBuilder builds an instance path in a reusable buffer.
type PathBuilder struct {
	buf []byte
}

var builders = sync.Pool{
	New: func() any {
		return &PathBuilder{buf: make([]byte, 0, 128)}
	},
}

// AcquirePathBuilder gets an empty PathBuilder from the pool. Call Release
// when done.
func AcquirePathBuilder() *PathBuilder {
	b := builders.Get().(*PathBuilder)
	b.buf = b.buf[:0]
	return b
}

// Release returns the builder to the pool.
func (b *PathBuilder) Release() {
	if b == nil || cap(b.buf) > maxPooledCap {
		return
	}
	builders.Put(b)
}

// Root starts the path at a type name or parent path.
func (b *PathBuilder) Root(path string) *PathBuilder {
	b.buf = append(b.buf[:0], path...)
	return b
}

// Field appends ".name", or just name on an empty path.
func (b *PathBuilder) Field(name string) *PathBuilder {
	if len(b.buf) > 0 {
		b.buf = append(b.buf, '.')
	}
	b.buf = append(b.buf, name...)
	return b
}

// Sidecar appends the "._name" key holding a primitive's extensions.
func (b *PathBuilder) Sidecar(name string) *PathBuilder {
	return b.Field("_" + name)
}

// Index appends "[i]".
func (b *PathBuilder) Index(i int) *PathBuilder {
	b.buf = append(b.buf, '[')
	b.buf = strconv.AppendInt(b.buf, int64(i), 10)
	b.buf = append(b.buf, ']')
	return b
}

// Len returns the length of the path.
func (b *PathBuilder) Len() int {
	return len(b.buf)
}

// String returns the path.
func (b *PathBuilder) String() string {
	return string(b.buf)
}

// Field returns parent + "." + name.
func Field(parent, name string) string {
	b := AcquirePathBuilder()
	defer b.Release()
	return b.Root(parent).Field(name).String()
}

// Index returns base + "[i]".
func Index(base string, i int) string {
	b := AcquirePathBuilder()
	defer b.Release()
	return b.Root(base).Index(i).String()
}

// Sidecar returns parent + "._" + name.
func Sidecar(parent, name string) string {
	b := AcquirePathBuilder()
	defer b.Release()
	return b.Root(parent).Sidecar(name).String()
}
