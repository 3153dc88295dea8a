// Package main opens a new DRAFT claim for the authenticated user.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/kylejryan/insurance-claims-pipeline/internal/api"
	"github.com/kylejryan/insurance-claims-pipeline/internal/app"
	"github.com/kylejryan/insurance-claims-pipeline/internal/authz"
	"github.com/kylejryan/insurance-claims-pipeline/internal/httpx"
	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
	"github.com/kylejryan/insurance-claims-pipeline/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/oklog/ulid/v2"
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

// handler validates the request and inserts the DRAFT claim record.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	sub, err := authz.FromAPIGWv2(req, a.c.Env.DevBypassAuth)
	if err != nil {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	var body api.CreateClaimRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.ClaimTypeOK(body.Type); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}
	if err := validate.AmountOK(body.RequestedAmount); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}
	if err := validate.DescriptionOK(body.Description); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	claim := models.Claim{
		ClaimID:         ulid.Make().String(),
		UserID:          sub,
		Type:            models.ClaimType(body.Type),
		RequestedAmount: body.RequestedAmount,
		Description:     body.Description,
		IncidentDate:    body.IncidentDate,
		Location:        body.Location,
	}
	if err := a.c.Repo.Create(ctx, claim); err != nil {
		log.Printf("create: ddb err: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	out, err := a.c.Repo.Get(ctx, sub, claim.ClaimID)
	if err != nil {
		log.Printf("create: readback err: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	return httpx.JSON(http.StatusCreated, out)
}
