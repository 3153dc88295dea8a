// Package main maintains the WebSocket connection registry on $connect and
// $disconnect so the notification publisher knows where to push.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/kylejryan/insurance-claims-pipeline/internal/app"
	"github.com/kylejryan/insurance-claims-pipeline/internal/authz"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	c *app.Components
}

func main() {
	c, err := app.Build(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	if c.Registry == nil {
		log.Fatal("wsconnect: DDB_CONN_TABLE not configured")
	}
	a := &App{c: c}
	lambda.Start(a.handler)
}

func (a *App) handler(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connID := req.RequestContext.ConnectionID
	sub, err := authz.FromWSRequest(req, a.c.Env.DevBypassAuth)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized, Body: "missing user"}, nil
	}

	switch req.RequestContext.RouteKey {
	case "$connect":
		err = a.c.Registry.Add(ctx, sub, connID)
	case "$disconnect":
		err = a.c.Registry.Remove(ctx, sub, connID)
	default:
		// Other routes are a no-op; the channel is push-only.
	}
	if err != nil {
		log.Printf("wsconnect: %s %s: %v", req.RequestContext.RouteKey, connID, err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "registry error"}, nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
}
