package apiclient

import (
	"context"
	"fmt"
	"net/url"
)

// getResource decodes a GET response into a new T.
func getResource[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var result T
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// listResources decodes a GET response into a slice of T.
func listResources[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var results []T
	if err := c.get(ctx, path, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// createResource POSTs body and decodes the response into a new T.
func createResource[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	var result T
	if err := c.post(ctx, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// resourcePath formats a path, escaping each argument as a path segment.
//
//	resourcePath("/api/v1/admin/pools/%s/statistics", "alice")
func resourcePath(format string, args ...string) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}
	return fmt.Sprintf(format, escaped...)
}
