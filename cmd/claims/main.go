// Package main powers the dashboard: the user's claims plus their aggregates.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/kylejryan/insurance-claims-pipeline/internal/api"
	"github.com/kylejryan/insurance-claims-pipeline/internal/app"
	"github.com/kylejryan/insurance-claims-pipeline/internal/authz"
	"github.com/kylejryan/insurance-claims-pipeline/internal/httpx"
	"github.com/kylejryan/insurance-claims-pipeline/internal/stats"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	c    *app.Components
	aggr *stats.Aggregator
}

func main() {
	c, err := app.Build(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	a := &App{c: c, aggr: &stats.Aggregator{Claims: c.Repo}}
	lambda.Start(a.handler)
}

// handler lists the caller's claims and recomputes their stats.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	sub, err := authz.FromAPIGWv2(req, a.c.Env.DevBypassAuth)
	if err != nil {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	claims, err := a.c.Repo.ListByUser(ctx, sub, 100)
	if err != nil {
		log.Printf("claims: list error: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	st, err := a.aggr.Compute(ctx, sub)
	if err != nil {
		log.Printf("claims: stats error: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	return httpx.JSON(http.StatusOK, api.ClaimListResponse{Claims: claims, Stats: st})
}
