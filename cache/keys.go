package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

/* Cache keys are derived deterministically from the request shape:
 * namespace, method, path, and the query string with parameters in
 * sorted order, so equivalent requests with reordered parameters share
 * one entry. The namespace prefix scopes wildcard invalidation
 */

// Key builds the cache key for a request
func Key(namespace, method, path string, query url.Values) string {
	key := fmt.Sprintf("%s:%s:%s", namespace, method, path)
	if len(query) == 0 {
		return key
	}

	params := make([]string, 0, len(query))
	for name, values := range query {
		for _, value := range values {
			params = append(params, fmt.Sprintf("%s=%s", name, value))
		}
	}
	sort.Strings(params)

	return key + "?" + strings.Join(params, "&")
}

// Pattern builds the wildcard invalidation pattern matching every key
// in the namespace that carries the given parameter value
func Pattern(namespace, param, value string) string {
	return fmt.Sprintf("%s:*%s=%s*", namespace, param, value)
}

// NamespacePattern matches every key in the namespace
func NamespacePattern(namespace string) string {
	return namespace + ":*"
}
