package main

import (
	"fmt"
	"os"

	"github.com/tjfontaine/lambda-api/internal/auth"
)

func main() {
	names := os.Args[1:]
	if len(names) == 0 {
		names = []string{"BETTER_AUTH_SECRET", "CSRF_SECRET", "SESSION_SECRET"}
	}

	fmt.Println("# Add these to your .env file:")
	for _, name := range names {
		secret, err := auth.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("%s=%s\n", name, secret)
	}
}
