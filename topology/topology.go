// Package topology maps message types to the broker entities they are published to.
//
// A message type urn such as "urn:message:orders:Submitted" becomes the entity name
// "orders.Submitted", and its publish address is the host address with the entity
// name appended to the path: "nats://localhost:4222/orders.Submitted".
package topology

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/casualjim/roost/messages"
	"github.com/fogfish/opts"
)

var (
	// ErrNoMessageType is returned when a message type is empty.
	ErrNoMessageType = errors.New("topology: message type is required")
	// ErrNoHost is returned when the host address is missing.
	ErrNoHost = errors.New("topology: host address is required")
)

// Publish resolves where messages of a given type are published.
type Publish interface {
	// EntityName returns the broker-side name for a message type.
	EntityName(messageType string) (string, error)
	// PublishAddress returns the address messages of messageType are published to on host.
	PublishAddress(host *url.URL, messageType string) (*url.URL, error)
}

// EntityNameFormatter turns a message type urn into an entity name.
type EntityNameFormatter func(messageType string) string

// DefaultEntityName strips the urn prefix and replaces ':' with '.'.
func DefaultEntityName(messageType string) string {
	return strings.ReplaceAll(messages.ShortName(messageType), ":", ".")
}

type publishTopology struct {
	formatter EntityNameFormatter
	prefix    string
	entities  map[string]string
}

var (
	// WithEntityNameFormatter replaces DefaultEntityName.
	WithEntityNameFormatter = opts.ForName[publishTopology, EntityNameFormatter]("formatter")
	// WithPrefix prepends a prefix to every formatted entity name.
	WithPrefix = opts.ForName[publishTopology, string]("prefix")
)

// WithEntityName pins the entity name of one message type, bypassing the formatter.
func WithEntityName(messageType, entity string) opts.Option[publishTopology] {
	return opts.Type[publishTopology](func(t *publishTopology) error {
		if messageType == "" || entity == "" {
			return fmt.Errorf("topology: entity override needs a message type and a name")
		}
		t.entities[messageType] = entity
		return nil
	})
}

// New creates a publish topology.
func New(options ...opts.Option[publishTopology]) (Publish, error) {
	t := &publishTopology{
		formatter: DefaultEntityName,
		entities:  make(map[string]string),
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}
	if t.formatter == nil {
		t.formatter = DefaultEntityName
	}
	return t, nil
}

// Default is New without options.
func Default() Publish {
	t, _ := New()
	return t
}

func (t *publishTopology) EntityName(messageType string) (string, error) {
	if messageType == "" {
		return "", ErrNoMessageType
	}
	if name, ok := t.entities[messageType]; ok {
		return name, nil
	}
	name := t.formatter(messageType)
	if name == "" {
		return "", fmt.Errorf("topology: no entity name for %q", messageType)
	}
	return t.prefix + name, nil
}

func (t *publishTopology) PublishAddress(host *url.URL, messageType string) (*url.URL, error) {
	if host == nil {
		return nil, ErrNoHost
	}
	name, err := t.EntityName(messageType)
	if err != nil {
		return nil, err
	}
	return Address(host, name), nil
}

// Address appends an entity name to the path of host and drops query and fragment.
func Address(host *url.URL, entity string) *url.URL {
	u := *host
	u.User = nil
	if host.User != nil {
		ui := *host.User
		u.User = &ui
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawPath = ""
	u.Path = path.Join("/", host.Path, entity)
	return &u
}

// EntityName returns the last path segment of an address.
func EntityName(addr *url.URL) string {
	if addr == nil {
		return ""
	}
	return path.Base(strings.TrimSuffix(addr.Path, "/"))
}
