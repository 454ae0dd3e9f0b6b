package ringbuf

import (
	"errors"
	"math"
	"sort"

	"github.com/goccy/go-json"
)

var (
	ErrInvalidCapacity = errors.New("ring buffer capacity must be greater than 0")
)

// Buffer is a fixed-capacity rolling store of samples.
// Once full, every Push overwrites the oldest sample.
//
// Buffer is not safe for concurrent use; the owner is expected to guard it.
type Buffer struct {
	values []float64
	cursor int
	count  int
}

// New makes a Buffer that holds up to capacity samples.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	return &Buffer{
		values: make([]float64, capacity),
	}, nil
}

// Push appends a sample, overwriting the oldest one if the buffer is full.
func (b *Buffer) Push(v float64) {
	b.values[b.cursor] = v
	b.cursor = (b.cursor + 1) % len(b.values)

	if b.count < len(b.values) {
		b.count++
	}
}

// Count returns the number of samples currently held.
func (b *Buffer) Count() int {
	return b.count
}

// Capacity returns the maximum number of samples the buffer holds.
func (b *Buffer) Capacity() int {
	return len(b.values)
}

// Values returns the held samples in chronological order, oldest first.
func (b *Buffer) Values() []float64 {
	vs := make([]float64, 0, b.count)

	if b.count < len(b.values) {
		return append(vs, b.values[:b.count]...)
	}

	vs = append(vs, b.values[b.cursor:]...)
	return append(vs, b.values[:b.cursor]...)
}

// Median returns the median of the held samples, or 0 if the buffer is empty.
// Callers that need to tell "no signal" from a true zero should check Count first.
func (b *Buffer) Median() float64 {
	if b.count == 0 {
		return 0
	}

	vs := b.Values()
	sort.Float64s(vs)

	mid := len(vs) / 2
	if len(vs)%2 == 0 {
		return (vs[mid-1] + vs[mid]) / 2
	}
	return vs[mid]
}

// Mean returns the average of the held samples, or 0 if the buffer is empty.
func (b *Buffer) Mean() float64 {
	if b.count == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range b.Values() {
		sum += v
	}
	return sum / float64(b.count)
}

// Min returns the smallest held sample, or 0 if the buffer is empty.
func (b *Buffer) Min() float64 {
	if b.count == 0 {
		return 0
	}

	min := math.Inf(1)
	for _, v := range b.Values() {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest held sample, or 0 if the buffer is empty.
func (b *Buffer) Max() float64 {
	if b.count == 0 {
		return 0
	}

	max := math.Inf(-1)
	for _, v := range b.Values() {
		if v > max {
			max = v
		}
	}
	return max
}

type bufferJSON struct {
	Capacity int       `json:"capacity"`
	Values   []float64 `json:"values"`
}

// MarshalJSON implements json.Marshaler.
// The samples are stored in chronological order together with the capacity,
// so an unmarshaled buffer behaves the same as the original.
func (b *Buffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(bufferJSON{
		Capacity: len(b.values),
		Values:   b.Values(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
// If the stored values exceed the stored capacity, only the newest ones are kept.
func (b *Buffer) UnmarshalJSON(data []byte) error {
	var j bufferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	if j.Capacity <= 0 {
		return ErrInvalidCapacity
	}

	b.values = make([]float64, j.Capacity)
	b.cursor = 0
	b.count = 0

	vs := j.Values
	if len(vs) > j.Capacity {
		vs = vs[len(vs)-j.Capacity:]
	}
	for _, v := range vs {
		b.Push(v)
	}

	return nil
}
