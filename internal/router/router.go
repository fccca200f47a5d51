// Package router binds channels to backend partitions. The binding is fixed
// at construction and read-only afterwards.
package router

import (
	"fmt"

	"github.com/tbourn/go-campus-chat/internal/docstore"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/identity"
)

// Binding is the store and identity of one partition.
type Binding struct {
	Store    docstore.Store
	Identity *identity.Provider
}

// Router resolves channel ids to partition handles.
type Router struct {
	bindings  map[domain.Partition]Binding
	locations []string
}

// New builds a router over one binding per partition and runs SelfCheck.
// locations lists the location rooms offered by Channels; any other valid
// slug still resolves to the location partition.
func New(bindings map[domain.Partition]Binding, locations []string) (*Router, error) {
	r := &Router{
		bindings:  make(map[domain.Partition]Binding, len(bindings)),
		locations: append([]string(nil), locations...),
	}
	for p, b := range bindings {
		r.bindings[p] = b
	}
	if err := r.SelfCheck(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve parses id and returns its channel and binding.
func (r *Router) Resolve(id string) (domain.Channel, Binding, error) {
	ch, err := domain.ParseChannel(id)
	if err != nil {
		return domain.Channel{}, Binding{}, err
	}
	b, ok := r.bindings[ch.Partition()]
	if !ok {
		return domain.Channel{}, Binding{}, domain.E(domain.KindConfiguration, "router.resolve",
			fmt.Sprintf("no partition bound for %s", ch.Partition()), nil)
	}
	return ch, b, nil
}

// ResolveStore returns the store holding channel id.
func (r *Router) ResolveStore(id string) (docstore.Store, error) {
	_, b, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	return b.Store, nil
}

// ResolveIdentity returns the identity used to write to channel id.
func (r *Router) ResolveIdentity(id string) (*identity.Provider, error) {
	_, b, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	return b.Identity, nil
}

// IsPartitioned reports whether id lives outside the main partition.
// Invalid ids are not partitioned.
func (r *Router) IsPartitioned(id string) bool {
	ch, err := domain.ParseChannel(id)
	if err != nil {
		return false
	}
	return ch.Partition() != domain.PartitionMain
}

// Channels lists the reserved channels followed by the location rooms.
func (r *Router) Channels() []domain.Channel {
	out := []domain.Channel{
		{ID: domain.ChannelGeneral, Kind: domain.KindGeneral},
		{ID: domain.ChannelConfessions, Kind: domain.KindConfessions},
		{ID: domain.ChannelSupport, Kind: domain.KindSupport},
	}
	seen := map[string]bool{}
	for _, id := range r.locations {
		ch, err := domain.ParseChannel(id)
		if err != nil || ch.Kind != domain.KindLocation || seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		out = append(out, ch)
	}
	return out
}

// SelfCheck verifies that every partition is bound, that each store answers
// to its own partition name, and that no two partitions share a store, a
// database or an identity. Support and confessions are checked by resolving
// them, so a regression in the channel mapping is caught as well.
func (r *Router) SelfCheck() error {
	const op = "router.self_check"
	fail := func(format string, args ...any) error {
		return domain.E(domain.KindConfiguration, op, fmt.Sprintf(format, args...), nil)
	}

	for _, p := range domain.Partitions {
		b, ok := r.bindings[p]
		if !ok || b.Store == nil || b.Identity == nil {
			return fail("partition %s is not bound", p)
		}
		if want := PartitionName(p); b.Store.Name() != want {
			return fail("partition %s is bound to store %q", p, b.Store.Name())
		}
		if b.Identity.Partition() != b.Store.Name() {
			return fail("partition %s uses the identity of %q", p, b.Identity.Partition())
		}
	}

	for i, a := range domain.Partitions {
		for _, c := range domain.Partitions[i+1:] {
			ba, bc := r.bindings[a], r.bindings[c]
			switch {
			case ba.Store == bc.Store:
				return fail("partitions %s and %s share a store", a, c)
			case ba.Store.DSN() == bc.Store.DSN():
				return fail("partitions %s and %s share database %q", a, c, ba.Store.DSN())
			case ba.Identity == bc.Identity:
				return fail("partitions %s and %s share an identity", a, c)
			}
		}
	}

	reserved := []string{domain.ChannelSupport, domain.ChannelConfessions, domain.ChannelGeneral}
	for i, a := range reserved {
		_, ba, err := r.Resolve(a)
		if err != nil {
			return err
		}
		for _, c := range reserved[i+1:] {
			_, bc, err := r.Resolve(c)
			if err != nil {
				return err
			}
			if ba.Store == bc.Store || ba.Identity == bc.Identity {
				return fail("%s and %s resolve to the same partition", a, c)
			}
		}
	}
	return nil
}

// PartitionName is the short name a partition's store answers to ("G", "S",
// "M" or "L").
func PartitionName(p domain.Partition) string {
	switch p {
	case domain.PartitionGeneral:
		return "G"
	case domain.PartitionSupport:
		return "S"
	case domain.PartitionLocation:
		return "L"
	default:
		return "M"
	}
}
