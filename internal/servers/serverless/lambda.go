// Package serverless runs the GitHub App webhook on AWS Lambda behind API
// Gateway.
package serverless

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/khulnasoft/pr-insight/internal/servers/githubapp"
)

// ProxyFunc is the Lambda entry point.
type ProxyFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Handler adapts the GitHub App routes to API Gateway proxy events. The
// invocation returns only after the background work of the delivery is
// done, since Lambda freezes the process once it returns.
func Handler(ctx context.Context, srv *githubapp.Server) ProxyFunc {
	adapter := httpadapter.New(srv.Handler(ctx))
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		srv.Wait()
		return resp, err
	}
}
