package ftpadapter

import (
	"fmt"
	"net/url"
	"strings"
)

// encodeURL builds an ftp:// URL for path against host:port, percent-encoding
// each path component individually and preserving "/" as the separator.
// With trailingSlash set (directory URLs), a "/" is appended unless the
// encoded path already ends in one; an empty leading component (i.e. a
// leading "/") is preserved as-is.
func encodeURL(host string, port int, path string, trailingSlash bool) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	encoded := strings.Join(parts, "/")
	if trailingSlash && !strings.HasSuffix(encoded, "/") {
		encoded += "/"
	}
	return fmt.Sprintf("ftp://%s:%d%s", host, port, encoded)
}
