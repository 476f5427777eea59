package registry

import (
	"maps"
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// Reserved attributes set on every published service.
const (
	AttrObjectClass = "objectClass"
	AttrServiceID   = "service.id"
)

// ServiceID is the registry-assigned handle of a published service. IDs are
// assigned in increasing order and never reused.
type ServiceID uint64

func (id ServiceID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseServiceID parses the decimal form produced by String.
func ParseServiceID(s string) (ServiceID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ServiceID(n), nil
}

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// NewSubscriptionID generates a new unique SubscriptionID using UUID v4.
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.New().String())
}

func (id SubscriptionID) String() string {
	return string(id)
}

// IsValid returns true if the SubscriptionID is a valid UUID.
func (id SubscriptionID) IsValid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

// Descriptor describes what is being published.
type Descriptor struct {
	// Interfaces are the names the service is published under. At least one
	// is required.
	Interfaces []string
	// Service is the object handed out by GetService.
	Service any
}

// Reference is an immutable handle on a published service.
type Reference struct {
	id         ServiceID
	interfaces []string
	attrs      map[string]any
}

func newReference(id ServiceID, interfaces []string, attrs map[string]any) Reference {
	all := make(map[string]any, len(attrs)+2)
	maps.Copy(all, attrs)
	ifaces := slices.Clone(interfaces)
	all[AttrObjectClass] = ifaces
	all[AttrServiceID] = int64(id)
	return Reference{id: id, interfaces: ifaces, attrs: all}
}

// ID returns the service handle. The zero Reference has ID 0, which is never
// assigned.
func (r Reference) ID() ServiceID {
	return r.id
}

// Interfaces returns a copy of the published interface names.
func (r Reference) Interfaces() []string {
	return slices.Clone(r.interfaces)
}

// Attributes returns a copy of the attributes, reserved ones included.
func (r Reference) Attributes() map[string]any {
	return maps.Clone(r.attrs)
}

// Attribute returns one attribute by exact name.
func (r Reference) Attribute(name string) (any, bool) {
	v, ok := r.attrs[name]
	return v, ok
}

// EventType is the kind of registry change.
type EventType int

const (
	Added EventType = iota + 1
	Removed
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event reports a change to the registry. Seq totally orders all events of
// one registry.
type Event struct {
	Type      EventType
	Seq       uint64
	Reference Reference
}

// Listener receives events for a subscription. It runs on the publishing
// goroutine, with registry dispatch serialized, so it must return quickly and
// must not publish or withdraw.
type Listener func(Event)

// Snapshot is the result of a Query.
type Snapshot struct {
	// Seq is the sequence number of the last event reflected in References.
	Seq uint64
	// References are sorted by ID.
	References []Reference
}

// Publication is an externally persisted service description, reconciled
// into the registry by Sync.
type Publication struct {
	// Key identifies the publication in its store.
	Key        string
	Interfaces []string
	Attributes map[string]any
}
