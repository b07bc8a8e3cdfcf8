package program

// Memory capacity bounds.
const (
	MinMemory     = 3
	MaxMemory     = 5
	DefaultMemory = MaxMemory
)

// Memory is a bounded FIFO of prior model replies for one request. When it
// is full the oldest reply is dropped. The zero value holds DefaultMemory
// replies. It is not safe for concurrent use; each request owns its own.
type Memory struct {
	buf   []string
	start int
	n     int
}

// NewMemory returns a Memory holding capacity replies, clamped to
// [MinMemory, MaxMemory].
func NewMemory(capacity int) *Memory {
	capacity = max(MinMemory, min(capacity, MaxMemory))
	return &Memory{buf: make([]string, capacity)}
}

func (m *Memory) init() {
	if m.buf == nil {
		m.buf = make([]string, DefaultMemory)
	}
}

// Add records a reply, evicting the oldest when full.
func (m *Memory) Add(reply string) {
	m.init()
	if m.n < len(m.buf) {
		m.buf[(m.start+m.n)%len(m.buf)] = reply
		m.n++
		return
	}
	m.buf[m.start] = reply
	m.start = (m.start + 1) % len(m.buf)
}

// Replies returns the stored replies, oldest first.
func (m *Memory) Replies() []string {
	out := make([]string, 0, m.n)
	for i := range m.n {
		out = append(out, m.buf[(m.start+i)%len(m.buf)])
	}
	return out
}

// Latest returns the most recent reply.
func (m *Memory) Latest() (string, bool) {
	if m.n == 0 {
		return "", false
	}
	return m.buf[(m.start+m.n-1)%len(m.buf)], true
}

func (m *Memory) Len() int { return m.n }

func (m *Memory) Cap() int {
	m.init()
	return len(m.buf)
}
