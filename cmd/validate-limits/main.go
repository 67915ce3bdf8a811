package main

import (
	"fmt"
	"os"

	"github.com/drytrack/drytrack-api/ratelimit"
)

/* validate-limits - Standalone CLI tool to validate limits.yaml
 * Usage: go run cmd/validate-limits/main.go [limits.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	limitsFile := "limits.yaml"
	if len(os.Args) > 1 {
		limitsFile = os.Args[1]
	}

	fmt.Printf("Validating limits file: %s\n\n", limitsFile)

	limits := ratelimit.NewLimits()
	if err := limits.Load(limitsFile); err != nil {
		fmt.Fprintf(os.Stderr, "VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	endpoints := limits.List()
	fmt.Printf("VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d endpoint limit(s):\n", len(endpoints))

	for endpoint, cfg := range endpoints {
		fmt.Printf("\n  %s\n", endpoint)
		fmt.Printf("    Window: %s\n", cfg.Window)
		fmt.Printf("    Max:    %d\n", cfg.Max)
	}

	os.Exit(0)
}
