// Package protocol defines the websocket message family shared by the
// server and the client agent. Every frame is a JSON object carrying a
// "type" discriminator; payload fields sit beside it.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Manojseetaram/code-share-clone/internal/model"
)

type Type string

const (
	// Client to server.
	TypeEdit        Type = "edit"
	TypeImage       Type = "image"
	TypeRemoveImage Type = "remove_image"

	// Server to client.
	TypeBroadcastEdit        Type = "broadcast_edit"
	TypeBroadcastImage       Type = "broadcast_image"
	TypeBroadcastRemoveImage Type = "broadcast_remove_image"
	TypeConnected            Type = "connected"
	TypeViewers              Type = "viewers"
)

// Edit replaces the document wholesale. The last edit a room processes
// wins; there is no merge.
type Edit struct {
	Type     Type   `json:"type"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

type AddImage struct {
	Type  Type        `json:"type"`
	Image model.Image `json:"image"`
}

type RemoveImage struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

type BroadcastEdit struct {
	Type     Type   `json:"type"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

type BroadcastImage struct {
	Type  Type        `json:"type"`
	Image model.Image `json:"image"`
}

type BroadcastRemoveImage struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

// Connected is sent once to a joining connection.
type Connected struct {
	Type    Type   `json:"type"`
	Slug    string `json:"slug"`
	Viewers int    `json:"viewers"`
}

// Viewers announces the room's connection count after a join or leave.
type Viewers struct {
	Type  Type `json:"type"`
	Count int  `json:"count"`
}

// Inbound is a message a client sends to the server.
type Inbound interface{ inbound() }

func (*Edit) inbound()        {}
func (*AddImage) inbound()    {}
func (*RemoveImage) inbound() {}

// Outbound is a message the server sends to clients.
type Outbound interface{ outbound() }

func (*BroadcastEdit) outbound()        {}
func (*BroadcastImage) outbound()       {}
func (*BroadcastRemoveImage) outbound() {}
func (*Connected) outbound()            {}
func (*Viewers) outbound()              {}

type envelope struct {
	Type Type `json:"type"`
}

// DecodeInbound parses a client frame. Malformed JSON or a payload that
// does not match its declared type returns an error; a well-formed frame
// of unknown type returns (nil, nil) so callers skip it without treating
// it as a protocol violation.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	switch env.Type {
	case TypeEdit:
		var m Edit
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode edit: %w", err)
		}
		return &m, nil
	case TypeImage:
		var m AddImage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode image: %w", err)
		}
		return &m, nil
	case TypeRemoveImage:
		var m RemoveImage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode remove_image: %w", err)
		}
		return &m, nil
	default:
		return nil, nil
	}
}

// DecodeOutbound parses a server frame on the client side. Same contract
// as DecodeInbound: unknown types are skipped, not fatal.
func DecodeOutbound(data []byte) (Outbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	switch env.Type {
	case TypeBroadcastEdit:
		var m BroadcastEdit
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode broadcast_edit: %w", err)
		}
		return &m, nil
	case TypeBroadcastImage:
		var m BroadcastImage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode broadcast_image: %w", err)
		}
		return &m, nil
	case TypeBroadcastRemoveImage:
		var m BroadcastRemoveImage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode broadcast_remove_image: %w", err)
		}
		return &m, nil
	case TypeConnected:
		var m Connected
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode connected: %w", err)
		}
		return &m, nil
	case TypeViewers:
		var m Viewers
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode viewers: %w", err)
		}
		return &m, nil
	default:
		return nil, nil
	}
}

// Encode marshals any message struct from this package. The Type field
// must already be set; the constructors below do that.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func NewEdit(content, language string) *Edit {
	return &Edit{Type: TypeEdit, Content: content, Language: language}
}

func NewAddImage(img model.Image) *AddImage {
	return &AddImage{Type: TypeImage, Image: img}
}

func NewRemoveImage(id string) *RemoveImage {
	return &RemoveImage{Type: TypeRemoveImage, ID: id}
}

func NewBroadcastEdit(content, language string) *BroadcastEdit {
	return &BroadcastEdit{Type: TypeBroadcastEdit, Content: content, Language: language}
}

func NewBroadcastImage(img model.Image) *BroadcastImage {
	return &BroadcastImage{Type: TypeBroadcastImage, Image: img}
}

func NewBroadcastRemoveImage(id string) *BroadcastRemoveImage {
	return &BroadcastRemoveImage{Type: TypeBroadcastRemoveImage, ID: id}
}

func NewConnected(slug string, viewers int) *Connected {
	return &Connected{Type: TypeConnected, Slug: slug, Viewers: viewers}
}

func NewViewers(count int) *Viewers {
	return &Viewers{Type: TypeViewers, Count: count}
}
