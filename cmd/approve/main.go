// Package main approves a reviewed claim for a payout amount.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/kylejryan/insurance-claims-pipeline/internal/api"
	"github.com/kylejryan/insurance-claims-pipeline/internal/app"
	"github.com/kylejryan/insurance-claims-pipeline/internal/authz"
	"github.com/kylejryan/insurance-claims-pipeline/internal/ddb"
	"github.com/kylejryan/insurance-claims-pipeline/internal/httpx"
	"github.com/kylejryan/insurance-claims-pipeline/internal/pipeline"

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
	a := &App{c: c}
	lambda.Start(a.handler)
}

// handler approves the claim. Reviewers act on other users' claims, so the
// claim owner comes from the body while the reviewer is authenticated.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if _, err := authz.FromAPIGWv2(req, a.c.Env.DevBypassAuth); err != nil {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	var body api.ApproveRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.ClaimID == "" || body.UserID == "" {
		return httpx.Error(http.StatusBadRequest, "claim_id and user_id required")
	}

	claim, err := a.c.Orchestrator.ApproveClaim(ctx, body.UserID, body.ClaimID, body.ApprovedAmount)
	switch {
	case err == nil:
		return httpx.JSON(http.StatusOK, claim)
	case pipeline.IsValidation(err):
		return httpx.Error(http.StatusConflict, err.Error())
	case errors.Is(err, ddb.ErrNotFound):
		return httpx.Error(http.StatusNotFound, "claim not found")
	default:
		log.Printf("approve: %v", err)
		return httpx.Error(http.StatusInternalServerError, "internal error")
	}
}
