// Package merkle is an implementation of a Merkle DAG for chat transcripts.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Bucket is the hashable payload of a node: one message of a conversation.
type Bucket struct {
	Type    string   `json:"type"`             // Always "message" for chat turns
	Role    string   `json:"role"`             // "system", "user", "assistant"
	Content string   `json:"content"`          // Message text
	Model   string   `json:"model"`            // Model the message was sent to or produced by
	Images  []string `json:"images,omitempty"` // SHA-256 digests of image attachments
	Metrics *Metrics `json:"metrics,omitempty"`
}

// Metrics carries backend timing for assistant messages.
type Metrics struct {
	TotalDurationNs int64 `json:"total_duration_ns"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
	EvalDurationNs  int64 `json:"eval_duration_ns"`
}

// Node represents a single content-addressed node in a Merkle DAG
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous node hash.
	// This will be nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	Content Bucket `json:"content"`
}

type input struct {
	Content Bucket `json:"content"`
	Parent  string `json:"parent,omitempty"`
}

// NewNode creates a new node with the computed hash for the provided content
func NewNode(content Bucket, parent *Node) *Node {
	n := &Node{
		Content: content,
	}

	if parent != nil {
		parentHash := parent.Hash
		n.ParentHash = &parentHash
	}

	n.Hash = n.computeHash()
	return n
}

// Verify reports whether the stored hash matches the node's content and parent.
func (n *Node) Verify() bool {
	return n.Hash == n.computeHash()
}

func (n *Node) computeHash() string {
	i := &input{
		Content: n.Content,
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Struct field order makes the encoding canonical.
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
