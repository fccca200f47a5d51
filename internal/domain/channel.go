// Package domain defines the core types shared by every layer of the chat
// client: channels and their partition binding, messages (both the normalized
// form used by the feed and the document form persisted by the store), and the
// error taxonomy surfaced to the UI shell.
package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Reserved channel identifiers. Every other valid identifier is a
// location-scoped room.
const (
	ChannelGeneral     = "general"
	ChannelSupport     = "support"
	ChannelConfessions = "confessions"
)

// DefaultLocationChannels is the location-scoped room set shipped by default.
// Deployments may override it through configuration.
var DefaultLocationChannels = []string{
	"library",
	"dining-hall",
	"residence-halls",
	"student-union",
	"athletics",
}

// ChannelKind is the closed set of channel variants.
type ChannelKind int

const (
	KindLocation ChannelKind = iota
	KindGeneral
	KindSupport
	KindConfessions
)

// String implements fmt.Stringer.
func (k ChannelKind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindSupport:
		return "support"
	case KindConfessions:
		return "confessions"
	case KindLocation:
		return "location"
	default:
		return fmt.Sprintf("ChannelKind(%d)", int(k))
	}
}

// Partition identifies an isolated backend instance holding the data of one
// channel group.
type Partition int

const (
	// PartitionMain is the default partition (confessions).
	PartitionMain Partition = iota
	PartitionGeneral
	PartitionSupport
	PartitionLocation
)

// Partitions lists every partition in a stable order.
var Partitions = []Partition{PartitionMain, PartitionGeneral, PartitionSupport, PartitionLocation}

// String implements fmt.Stringer.
func (p Partition) String() string {
	switch p {
	case PartitionMain:
		return "main"
	case PartitionGeneral:
		return "general"
	case PartitionSupport:
		return "support"
	case PartitionLocation:
		return "location"
	default:
		return fmt.Sprintf("Partition(%d)", int(p))
	}
}

// Partition returns the static partition binding of a channel kind. The switch
// is total over ChannelKind; an unknown kind panics rather than falling through
// to a shared partition.
func (k ChannelKind) Partition() Partition {
	switch k {
	case KindGeneral:
		return PartitionGeneral
	case KindSupport:
		return PartitionSupport
	case KindConfessions:
		return PartitionMain
	case KindLocation:
		return PartitionLocation
	}
	panic(fmt.Sprintf("domain: no partition for %v", k))
}

// Channel is a parsed channel identifier.
type Channel struct {
	ID   string
	Kind ChannelKind
}

// Partition is shorthand for c.Kind.Partition().
func (c Channel) Partition() Partition { return c.Kind.Partition() }

// String returns the channel identifier.
func (c Channel) String() string { return c.ID }

var channelIDRE = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,47}$`)

// ErrInvalidChannel is returned by ParseChannel for malformed identifiers.
var ErrInvalidChannel = &Error{Kind: KindValidation, Op: "channel.parse", Msg: "invalid channel id"}

// ParseChannel maps a raw identifier onto the channel variant. Identifiers are
// case-insensitive and must be lowercase slugs once normalized.
func ParseChannel(id string) (Channel, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !channelIDRE.MatchString(id) {
		return Channel{}, ErrInvalidChannel
	}
	switch id {
	case ChannelGeneral:
		return Channel{ID: id, Kind: KindGeneral}, nil
	case ChannelSupport:
		return Channel{ID: id, Kind: KindSupport}, nil
	case ChannelConfessions:
		return Channel{ID: id, Kind: KindConfessions}, nil
	default:
		return Channel{ID: id, Kind: KindLocation}, nil
	}
}
