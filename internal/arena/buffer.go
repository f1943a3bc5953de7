package arena

// Ownership tells who is responsible for freeing a buffer's storage.
type Ownership uint8

const (
	// Absent marks the zero Buffer: nothing was supplied.
	Absent Ownership = iota
	// Owned storage belongs to one holder and is freed by Pool.Free.
	Owned
	// Shared storage comes from the dedupe index and is freed by ReleaseAll.
	Shared
	// Borrowed bytes are owned outside the pool and never freed here.
	Borrowed
)

// String returns the name of the ownership kind.
func (o Ownership) String() string {
	switch o {
	case Absent:
		return "absent"
	case Owned:
		return "owned"
	case Shared:
		return "shared"
	case Borrowed:
		return "borrowed"
	default:
		return "unknown"
	}
}

// Buffer is an ownership-tagged reference to bytes managed through a Pool.
type Buffer struct {
	own    Ownership
	handle Handle
	ext    []byte
}

// Ownership returns the ownership kind of b.
func (b Buffer) Ownership() Ownership { return b.own }

// Present reports whether the buffer was supplied.
func (b Buffer) Present() bool { return b.own != Absent }

// Handle returns the pool handle; borrowed and absent buffers have none.
func (b Buffer) Handle() Handle { return b.handle }

// SameStorage reports whether a and b refer to the same pool slot.
func SameStorage(a, b Buffer) bool {
	if a.own == Absent || a.own == Borrowed || b.own == Absent || b.own == Borrowed {
		return false
	}
	return a.handle == b.handle
}
