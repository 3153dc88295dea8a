// Package main administratively reopens a claim for editing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

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

func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	sub, err := authz.FromAPIGWv2(req, a.c.Env.DevBypassAuth)
	if err != nil {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	var body struct {
		ClaimID string `json:"claim_id"`
		UserID  string `json:"user_id,omitempty"` // admins may reset others' claims
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.ClaimID == "" {
		return httpx.Error(http.StatusBadRequest, "claim_id required")
	}
	owner := body.UserID
	if owner == "" {
		owner = sub
	}

	claim, err := a.c.Orchestrator.ResetToDraft(ctx, owner, body.ClaimID)
	switch {
	case err == nil:
		return httpx.JSON(http.StatusOK, claim)
	case pipeline.IsValidation(err):
		return httpx.Error(http.StatusConflict, err.Error())
	case errors.Is(err, ddb.ErrNotFound):
		return httpx.Error(http.StatusNotFound, "claim not found")
	default:
		log.Printf("reset: %v", err)
		return httpx.Error(http.StatusInternalServerError, "internal error")
	}
}
