package raft

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// The version byte that every encoded configuration starts with. Bumped
// whenever the encoding changes shape.
const configurationEncodingVersion = 1

// Server is a member of the cluster configuration.
type Server struct {
	// The unique, non-zero ID of the server.
	ID uint64

	// The network address of the server. Opaque to the engine: only the
	// transport interprets it.
	Address string

	// Whether the server counts towards quorum and votes in elections.
	// Non-voting servers merely receive log entries.
	Voting bool
}

// Configuration is an ordered list of the servers in the cluster.
type Configuration struct {
	// The servers in the cluster, in a stable order. Server IDs are unique.
	Servers []Server
}

// NewConfiguration creates a new empty configuration.
func NewConfiguration() *Configuration {
	return &Configuration{}
}

// Clone returns a deep copy of the configuration.
func (c *Configuration) Clone() *Configuration {
	servers := make([]Server, len(c.Servers))
	copy(servers, c.Servers)
	return &Configuration{Servers: servers}
}

// IndexOf returns the position of the server with the provided ID in the
// configuration, or -1 if there is no such server.
func (c *Configuration) IndexOf(id uint64) int {
	for i, server := range c.Servers {
		if server.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the server with the provided ID, or nil if there is no such
// server.
func (c *Configuration) Get(id uint64) *Server {
	i := c.IndexOf(id)
	if i == -1 {
		return nil
	}
	return &c.Servers[i]
}

// Add adds a server with the provided ID, address and voting role to the
// configuration. ErrDuplicateID is returned if a server with this ID is
// already a member.
func (c *Configuration) Add(id uint64, address string, voting bool) error {
	if id == 0 {
		return fmt.Errorf("could not add server: ID must not be zero: %w", ErrBadState)
	}
	if c.IndexOf(id) != -1 {
		return fmt.Errorf("could not add server %d: %w", id, ErrDuplicateID)
	}
	c.Servers = append(c.Servers, Server{ID: id, Address: address, Voting: voting})
	return nil
}

// Remove removes the server with the provided ID from the configuration.
// ErrUnknownID is returned if there is no such server and ErrBadState if
// removing it would leave the configuration without voting members.
func (c *Configuration) Remove(id uint64) error {
	i := c.IndexOf(id)
	if i == -1 {
		return fmt.Errorf("could not remove server %d: %w", id, ErrUnknownID)
	}
	if c.Servers[i].Voting && c.NVoting() == 1 {
		return fmt.Errorf("could not remove server %d: no voting members would remain: %w", id, ErrBadState)
	}
	c.Servers = append(c.Servers[:i], c.Servers[i+1:]...)
	return nil
}

// Promote grants the server with the provided ID a voting role.
// ErrUnknownID is returned if there is no such server.
func (c *Configuration) Promote(id uint64) error {
	i := c.IndexOf(id)
	if i == -1 {
		return fmt.Errorf("could not promote server %d: %w", id, ErrUnknownID)
	}
	c.Servers[i].Voting = true
	return nil
}

// NVoting returns the number of voting members in the configuration.
func (c *Configuration) NVoting() int {
	n := 0
	for _, server := range c.Servers {
		if server.Voting {
			n++
		}
	}
	return n
}

// Quorum returns the number of voting members that constitutes a strict
// majority of the configuration.
func (c *Configuration) Quorum() int {
	return c.NVoting()/2 + 1
}

// encodeConfiguration encodes the configuration into a stable, versioned
// byte representation: a version byte, then the server count, then one
// record per server holding its ID, its length-prefixed UTF-8 address and
// its voting role. All integers are little-endian.
func encodeConfiguration(configuration *Configuration) []byte {
	size := 1 + 8
	for _, server := range configuration.Servers {
		size += 8 + 8 + len(server.Address) + 1
	}

	buf := make([]byte, 0, size)
	buf = append(buf, configurationEncodingVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(configuration.Servers)))
	for _, server := range configuration.Servers {
		buf = binary.LittleEndian.AppendUint64(buf, server.ID)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(server.Address)))
		buf = append(buf, server.Address...)
		if server.Voting {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}

	return buf
}

// decodeConfiguration decodes a byte representation produced by
// encodeConfiguration.
func decodeConfiguration(data []byte) (*Configuration, error) {
	if len(data) < 1+8 {
		return nil, fmt.Errorf("could not decode configuration: buffer of %d bytes is too short", len(data))
	}
	if data[0] != configurationEncodingVersion {
		return nil, fmt.Errorf("could not decode configuration: unknown version %d", data[0])
	}

	n := binary.LittleEndian.Uint64(data[1:])
	data = data[1+8:]

	configuration := NewConfiguration()
	for i := uint64(0); i < n; i++ {
		if len(data) < 8+8 {
			return nil, fmt.Errorf("could not decode configuration: truncated server record %d", i)
		}
		id := binary.LittleEndian.Uint64(data)
		addressLen := binary.LittleEndian.Uint64(data[8:])
		data = data[16:]

		if uint64(len(data)) < addressLen+1 {
			return nil, fmt.Errorf("could not decode configuration: truncated server record %d", i)
		}
		address := string(data[:addressLen])
		if !utf8.ValidString(address) {
			return nil, fmt.Errorf("could not decode configuration: address of server %d is not valid UTF-8", id)
		}
		voting := data[addressLen] == 1
		data = data[addressLen+1:]

		if err := configuration.Add(id, address, voting); err != nil {
			return nil, fmt.Errorf("could not decode configuration: %w", err)
		}
	}

	return configuration, nil
}
