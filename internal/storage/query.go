package storage

// SizeClass restricts a pending query to one side of the small/large split.
type SizeClass int

const (
	AnySize SizeClass = iota
	SmallOnly
	LargeOnly
)

// Order selects how candidates are ranked. Every order ends with the insertion
// sequence so ties resolve deterministically.
type Order int

const (
	// ByPriority ranks priority DESC, created_at ASC.
	ByPriority Order = iota
	// ByAge ranks created_at ASC, priority DESC.
	ByAge
)

// PendingQuery describes the single pending job a selection step asks for.
type PendingQuery struct {
	Premium    bool
	Size       SizeClass
	SmallBelow int
	Order      Order
}
