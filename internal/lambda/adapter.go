// Package lambda runs API Gateway proxy events through an http.Handler.
package lambda

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// Adapter translates one proxy event into one HTTP request/response cycle.
type Adapter struct {
	proxy *httpadapter.HandlerAdapter
}

// New wraps h.
func New(h http.Handler) *Adapter {
	return &Adapter{proxy: httpadapter.New(h)}
}

// Handle is the Lambda entry point. The caller address is forwarded as
// X-Forwarded-For when API Gateway did not already set it, so rate limiting
// and audit logs see the client rather than "unknown".
func (a *Adapter) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return a.proxy.ProxyWithContext(ctx, withForwardedFor(event))
}

func withForwardedFor(event events.APIGatewayProxyRequest) events.APIGatewayProxyRequest {
	ip := event.RequestContext.Identity.SourceIP
	if ip == "" {
		return event
	}
	for k := range event.Headers {
		if http.CanonicalHeaderKey(k) == "X-Forwarded-For" {
			return event
		}
	}
	for k := range event.MultiValueHeaders {
		if http.CanonicalHeaderKey(k) == "X-Forwarded-For" {
			return event
		}
	}

	headers := make(map[string]string, len(event.Headers)+1)
	for k, v := range event.Headers {
		headers[k] = v
	}
	headers["X-Forwarded-For"] = ip
	event.Headers = headers

	if event.MultiValueHeaders != nil {
		mv := make(map[string][]string, len(event.MultiValueHeaders)+1)
		for k, v := range event.MultiValueHeaders {
			mv[k] = v
		}
		mv["X-Forwarded-For"] = []string{ip}
		event.MultiValueHeaders = mv
	}
	return event
}
