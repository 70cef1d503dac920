package priograph

// TxID identifies a transaction inside one block. It is the transaction's
// index in block order and, unless a PriorityFunc says otherwise, its
// scheduling priority (lower pops first).
type TxID int

// AccessKind is the intent a transaction declares on a resource.
type AccessKind uint8

const (
	// Read is a non-exclusive access. Reads never block other reads.
	Read AccessKind = iota
	// Write is an exclusive access.
	Write
)

// String returns "read" or "write".
func (k AccessKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// Access is one (resource, kind) requirement of a transaction.
type Access[K comparable] struct {
	Key  K
	Kind AccessKind
}

// resourceEntry tracks the most recent accesses to one resource.
// readers only ever holds ids inserted after lastWrite.
type resourceEntry struct {
	lastWrite TxID
	hasWrite  bool
	readers   []TxID
}

// Ledger is the per-resource bookkeeping used to derive conflicts while
// transactions are inserted in block order.
type Ledger[K comparable] struct {
	entries map[K]*resourceEntry
}

// NewLedger creates an empty ledger.
func NewLedger[K comparable]() *Ledger[K] {
	return &Ledger[K]{entries: make(map[K]*resourceEntry)}
}

// Len returns the number of distinct resources seen so far.
func (l *Ledger[K]) Len() int {
	return len(l.entries)
}

// Record registers an access by id and returns the already registered
// transactions that must precede it:
//
//   - Write: the last writer plus every reader since that write.
//   - Read: the last writer only.
//
// The first access to a resource has no blockers. The returned slice never
// contains id itself and never contains duplicates.
func (l *Ledger[K]) Record(key K, kind AccessKind, id TxID) []TxID {
	entry, ok := l.entries[key]
	if !ok {
		entry = &resourceEntry{}
		l.entries[key] = entry
	}

	var blockers []TxID
	if entry.hasWrite && entry.lastWrite != id {
		blockers = append(blockers, entry.lastWrite)
	}

	switch kind {
	case Write:
		for _, reader := range entry.readers {
			// A writer that re-read its own key is already listed.
			if reader != id && !(entry.hasWrite && reader == entry.lastWrite) {
				blockers = append(blockers, reader)
			}
		}
		entry.lastWrite = id
		entry.hasWrite = true
		entry.readers = entry.readers[:0]
	case Read:
		// Accesses of one transaction are recorded back to back, so a
		// repeated read by the same id can only be the last element.
		if n := len(entry.readers); n == 0 || entry.readers[n-1] != id {
			entry.readers = append(entry.readers, id)
		}
	default:
		panic("priograph: unknown access kind")
	}

	return blockers
}

// LastWrite returns the most recent writer of key, if any.
func (l *Ledger[K]) LastWrite(key K) (TxID, bool) {
	entry, ok := l.entries[key]
	if !ok || !entry.hasWrite {
		return 0, false
	}
	return entry.lastWrite, true
}

// Readers returns the transactions that read key since its last write.
func (l *Ledger[K]) Readers(key K) []TxID {
	entry, ok := l.entries[key]
	if !ok {
		return nil
	}
	out := make([]TxID, len(entry.readers))
	copy(out, entry.readers)
	return out
}
