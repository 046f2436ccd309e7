package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// HashURL returns the hex SHA-256 of rawURL, used as a fixed-length cache key.
func HashURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// ToAbsoluteURL resolves href against base. Only http(s) results are accepted.
func ToAbsoluteURL(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errors.New("empty link")
	}
	rel, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	abs := base.ResolveReference(rel)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", errors.New("unsupported scheme " + abs.Scheme)
	}
	if abs.Host == "" {
		return "", errors.New("missing host")
	}
	return abs.String(), nil
}

// ParseGroupedInt parses counts such as "12,345".
func ParseGroupedInt(s string) (int, error) {
	s = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	return strconv.Atoi(s)
}
