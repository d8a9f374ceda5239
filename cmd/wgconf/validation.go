package main

import (
	"fmt"
	"strings"
)

// parseParams splits Key=Value arguments. The value may itself contain '='.
func parseParams(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q - expected Key=Value, e.g. DNS=10.0.0.1", arg)
		}
		out = append(out, [2]string{key, strings.TrimSpace(value)})
	}
	return out, nil
}
