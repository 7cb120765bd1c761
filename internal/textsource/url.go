package textsource

import "net/url"

// IsURL reports whether s carries both a scheme and a host. Anything that
// fails to parse is treated as literal text.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
