package identity

import (
	"errors"
	"net/url"
	"strings"
)

var ErrEmptyURL = errors.New("empty url")

// CanonicalURL resolves a listing href against the page it was found on and
// drops the fragment, so the same advert always maps to the same key.
func CanonicalURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", ErrEmptyURL
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}

	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		ref = baseURL.ResolveReference(ref)
	}

	ref.Fragment = ""
	ref.RawFragment = ""
	ref.Host = strings.ToLower(ref.Host)
	ref.Scheme = strings.ToLower(ref.Scheme)

	return ref.String(), nil
}

// SearchURL is the results listing for one city and intent (rent or sale).
func SearchURL(base, city, intent string) string {
	return strings.TrimRight(base, "/") + "/en/ct/" + url.PathEscape(city) + "/real-estate-for-" + intent + ":o:n"
}
