// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package ids

import (
	"strings"
)

// NodeURL is a node id together with the address it listens on.
type NodeURL struct {
	ID      NodeID
	Address string
}

// ParseNodeURL parses a node url of the form id@host:port.
func ParseNodeURL(s string) (NodeURL, error) {
	s = strings.TrimSpace(s)
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return NodeURL{}, ErrNodeID.New("node url %q is missing an id", s)
	}

	id, err := NodeIDFromString(s[:at])
	if err != nil {
		return NodeURL{}, err
	}
	address := s[at+1:]
	if address == "" {
		return NodeURL{}, ErrNodeID.New("node url %q is missing an address", s)
	}
	return NodeURL{ID: id, Address: address}, nil
}

// ParseNodeURLs parses a comma separated list of node urls.
func ParseNodeURLs(s string) ([]NodeURL, error) {
	var urls []NodeURL
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		url, err := ParseNodeURL(part)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// String returns the id@address form.
func (url NodeURL) String() string {
	return url.ID.String() + "@" + url.Address
}
