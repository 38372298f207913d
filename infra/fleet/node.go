package fleet

import "strconv"

// NodeRef selects a node: a pool index, a concrete address, or Random.
type NodeRef struct {
	index int
	addr  string
}

var Random = NodeRef{index: -1}

func Index(i int) NodeRef {
	return NodeRef{index: i}
}

func Addr(addr string) NodeRef {
	return NodeRef{addr: addr}
}

func (r NodeRef) String() string {
	switch {
	case r.addr != "":
		return r.addr
	case r.index < 0:
		return "random"
	default:
		return "#" + strconv.Itoa(r.index)
	}
}
