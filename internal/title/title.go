// Package title holds the static catalog of Title-Servers (spec §3):
// one fixed-port lobby process per game, plus its Gate advertisement
// metadata and text-encoding requirement.
package title

import (
	"fmt"

	"github.com/iwango/iwango-server/internal/config"
	"github.com/iwango/iwango-server/internal/protocol"
)

// Title describes one registered game.
type Title struct {
	Token         string
	Name          string
	BindAddress   string
	Port          int
	AdvertiseHost string
	AdvertisePort int
	Capacity      int
	MOTD          string
	Encoding      protocol.TextEncoding
}

// Catalog looks titles up by token or by port.
type Catalog struct {
	byToken map[string]*Title
	byPort  map[int]*Title
	all     []*Title
}

// NewCatalog builds a Catalog from configured titles. Returns an error if
// two titles share a token or a port.
func NewCatalog(cfgs []config.TitleConfig) (*Catalog, error) {
	c := &Catalog{
		byToken: make(map[string]*Title),
		byPort:  make(map[int]*Title),
	}

	for _, tc := range cfgs {
		t := &Title{
			Token:         tc.Token,
			Name:          tc.Name,
			BindAddress:   tc.BindAddress,
			Port:          tc.Port,
			AdvertiseHost: tc.AdvertiseHost,
			AdvertisePort: tc.AdvertisePort,
			Capacity:      tc.Capacity,
			MOTD:          tc.MOTD,
			Encoding:      protocol.EncodingFor(tc.FullWidthText),
		}
		if _, exists := c.byToken[t.Token]; exists {
			return nil, fmt.Errorf("duplicate title token %q", t.Token)
		}
		if _, exists := c.byPort[t.Port]; exists {
			return nil, fmt.Errorf("duplicate title port %d", t.Port)
		}
		c.byToken[t.Token] = t
		c.byPort[t.Port] = t
		c.all = append(c.all, t)
	}

	return c, nil
}

// ByToken looks up a title by its short game token.
func (c *Catalog) ByToken(token string) (*Title, bool) {
	t, ok := c.byToken[token]
	return t, ok
}

// ByPort looks up a title by its lobby listener port.
func (c *Catalog) ByPort(port int) (*Title, bool) {
	t, ok := c.byPort[port]
	return t, ok
}

// All returns every registered title.
func (c *Catalog) All() []*Title { return c.all }
