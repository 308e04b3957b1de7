package main

import (
	"context"
	"log"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/tjfontaine/lambda-api/internal/app"
	"github.com/tjfontaine/lambda-api/internal/lambda"
)

func main() {
	// Collaborators are built once per cold start and reused across
	// invocations.
	a, err := app.New(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close(context.Background())

	awslambda.Start(lambda.New(a.Handler()).Handle)
}
