package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role tags who produced a MemoryEntry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleFunction is accepted when reading transcripts but never produced by the core.
	RoleFunction Role = "function"
)

// Valid reports whether r is a recognised role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction:
		return true
	}
	return false
}

// BlockType distinguishes the variants of a ContentBlock.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockImageURL BlockType = "image_url"
)

// ImageURL is either a URL of the image or base64 encoded image data.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "low", "high" or "auto"
}

// ContentBlock is one element of a multi-part message.
type ContentBlock struct {
	Type     BlockType `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock creates an image content block.
func ImageBlock(url, detail string) ContentBlock {
	return ContentBlock{Type: BlockImageURL, ImageURL: &ImageURL{URL: url, Detail: detail}}
}

// MemoryEntry is a single immutable item of the conversation log.
// Fields are unexported; use the accessors. Accessors return copies so
// callers cannot mutate an entry that is shared between forks.
type MemoryEntry struct {
	id        string
	role      Role
	text      string
	blocks    []ContentBlock
	name      string
	region    string
	metadata  map[string]any
	timestamp time.Time
}

// EntryOption configures optional fields of a MemoryEntry at creation.
type EntryOption func(*MemoryEntry)

// WithName sets the speaker name of the entry.
func WithName(name string) EntryOption {
	return func(e *MemoryEntry) {
		e.name = name
	}
}

// WithRegion places the entry in a named region of the working memory.
func WithRegion(region string) EntryOption {
	return func(e *MemoryEntry) {
		e.region = region
	}
}

// WithMetadata attaches JSON-compatible metadata. The map is copied.
func WithMetadata(metadata map[string]any) EntryOption {
	return func(e *MemoryEntry) {
		if len(metadata) == 0 {
			return
		}
		if e.metadata == nil {
			e.metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(e.metadata, metadata)
	}
}

// WithID sets an explicit identifier. Without one, WorkingMemory.WithMemory
// assigns a content-addressed ID when the entry is appended.
func WithID(id string) EntryOption {
	return func(e *MemoryEntry) {
		e.id = id
	}
}

// WithTimestamp records when the entry was observed. Entries derived by
// cognitive steps carry no timestamp so that derivation stays deterministic.
func WithTimestamp(ts time.Time) EntryOption {
	return func(e *MemoryEntry) {
		e.timestamp = ts
	}
}

// NewEntry creates a plain-text entry.
func NewEntry(role Role, text string, opts ...EntryOption) MemoryEntry {
	e := MemoryEntry{
		role: role,
		text: text,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// NewBlocksEntry creates an entry whose content is an ordered sequence of blocks.
func NewBlocksEntry(role Role, blocks []ContentBlock, opts ...EntryOption) MemoryEntry {
	e := NewEntry(role, "", opts...)
	e.blocks = cloneBlocks(blocks)
	if e.blocks == nil {
		e.blocks = []ContentBlock{}
	}
	return e
}

// System creates a system-role text entry.
func System(text string, opts ...EntryOption) MemoryEntry {
	return NewEntry(RoleSystem, text, opts...)
}

// User creates a user-role text entry.
func User(text string, opts ...EntryOption) MemoryEntry {
	return NewEntry(RoleUser, text, opts...)
}

// Assistant creates an assistant-role text entry.
func Assistant(text string, opts ...EntryOption) MemoryEntry {
	return NewEntry(RoleAssistant, text, opts...)
}

func (e MemoryEntry) ID() string           { return e.id }
func (e MemoryEntry) Role() Role           { return e.role }
func (e MemoryEntry) Name() string         { return e.name }
func (e MemoryEntry) Region() string       { return e.region }
func (e MemoryEntry) Timestamp() time.Time { return e.timestamp }

// IsBlocks reports whether the content is a block sequence rather than plain text.
func (e MemoryEntry) IsBlocks() bool {
	return e.blocks != nil
}

// Blocks returns a copy of the content blocks, or nil for plain-text entries.
func (e MemoryEntry) Blocks() []ContentBlock {
	return cloneBlocks(e.blocks)
}

// cloneBlocks copies blocks including the image each one points to.
func cloneBlocks(blocks []ContentBlock) []ContentBlock {
	out := slices.Clone(blocks)
	for i, b := range out {
		if b.ImageURL != nil {
			img := *b.ImageURL
			out[i].ImageURL = &img
		}
	}
	return out
}

// Text returns the textual content. For block content the text blocks are
// joined with newlines and image blocks are skipped.
func (e MemoryEntry) Text() string {
	if e.blocks == nil {
		return e.text
	}
	parts := make([]string, 0, len(e.blocks))
	for _, b := range e.blocks {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Metadata returns a copy of the metadata map (nil if none).
func (e MemoryEntry) Metadata() map[string]any {
	if e.metadata == nil {
		return nil
	}
	return maps.Clone(e.metadata)
}

// Meta returns a single metadata value.
func (e MemoryEntry) Meta(key string) (any, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

type entryJSON struct {
	ID        string          `json:"_id"`
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content"`
	Name      string          `json:"name,omitempty"`
	Region    string          `json:"region,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Timestamp int64           `json:"_timestamp,omitempty"`
}

// MarshalJSON encodes the entry using the transcript wire shape, where
// content is either a string or an array of blocks.
func (e MemoryEntry) MarshalJSON() ([]byte, error) {
	var content any = e.text
	if e.blocks != nil {
		content = e.blocks
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	wire := entryJSON{
		ID:       e.id,
		Role:     e.role,
		Content:  raw,
		Name:     e.name,
		Region:   e.region,
		Metadata: e.metadata,
	}
	if !e.timestamp.IsZero() {
		wire.Timestamp = e.timestamp.UnixMilli()
	}
	return json.Marshal(wire)
}

// entryNamespace scopes content-addressed entry IDs.
var entryNamespace = uuid.MustParse("6f1c2a5e-9b7d-4c1e-8a3f-2d4b6e8f0a11")

// deriveID computes a stable ID from the entry content and its predecessor,
// so identical derivations from identical memories yield identical IDs.
func (e MemoryEntry) deriveID(prevID string) string {
	var b strings.Builder
	b.WriteString(prevID)
	b.WriteByte(0)
	b.WriteString(string(e.role))
	b.WriteByte(0)
	b.WriteString(e.name)
	b.WriteByte(0)
	b.WriteString(e.region)
	b.WriteByte(0)
	if e.blocks != nil {
		raw, _ := json.Marshal(e.blocks)
		b.Write(raw)
	} else {
		b.WriteString(e.text)
	}
	if len(e.metadata) > 0 {
		b.WriteByte(0)
		raw, _ := json.Marshal(e.metadata)
		b.Write(raw)
	}
	return uuid.NewSHA1(entryNamespace, []byte(b.String())).String()
}

// UnmarshalJSON decodes an entry written by MarshalJSON.
func (e *MemoryEntry) UnmarshalJSON(data []byte) error {
	var wire entryJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if !wire.Role.Valid() {
		return fmt.Errorf("invalid memory role %q", wire.Role)
	}

	*e = MemoryEntry{
		id:       wire.ID,
		role:     wire.Role,
		name:     wire.Name,
		region:   wire.Region,
		metadata: wire.Metadata,
	}
	if wire.Timestamp != 0 {
		e.timestamp = time.UnixMilli(wire.Timestamp).UTC()
	}

	trimmed := strings.TrimSpace(string(wire.Content))
	switch {
	case trimmed == "" || trimmed == "null":
	case strings.HasPrefix(trimmed, "["):
		var blocks []ContentBlock
		if err := json.Unmarshal(wire.Content, &blocks); err != nil {
			return fmt.Errorf("failed to decode content blocks: %w", err)
		}
		if blocks == nil {
			blocks = []ContentBlock{}
		}
		e.blocks = blocks
	default:
		if err := json.Unmarshal(wire.Content, &e.text); err != nil {
			return fmt.Errorf("failed to decode content: %w", err)
		}
	}
	return nil
}
