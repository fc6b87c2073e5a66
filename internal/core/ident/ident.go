// Package ident generates identifiers for comments, replies, threads, and
// annotations. IDs are snowflakes: a millisecond timestamp, a node number,
// and a per-millisecond sequence, so IDs created in rapid succession by the
// same generator never collide.
package ident

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// Prefixes for the kinds of generated IDs.
const (
	PrefixComment    = "c"
	PrefixReply      = "r"
	PrefixThread     = "t"
	PrefixAnnotation = "a"
)

// Generator produces prefixed snowflake IDs. It is safe for concurrent use.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a generator for the given node number (0-1023).
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// ProcessGenerator creates a generator whose node number is derived from the
// process id, keeping IDs from concurrently running CLI invocations apart.
func ProcessGenerator() *Generator {
	g, err := NewGenerator(int64(os.Getpid() % 1024))
	if err != nil {
		// pid % 1024 is always a valid node number.
		panic(err)
	}
	return g
}

// New returns a new ID of the form "<prefix>_<base58 snowflake>".
func (g *Generator) New(prefix string) string {
	return prefix + "_" + g.node.Generate().Base58()
}

// SessionID returns a new time-ordered UUID for review sessions.
func SessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
