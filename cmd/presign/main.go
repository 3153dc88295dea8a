// Package main generates presigned URLs for uploading claim evidence to S3.
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
	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
	"github.com/kylejryan/insurance-claims-pipeline/internal/s3io"
	"github.com/kylejryan/insurance-claims-pipeline/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	c   *app.Components
	s3p *s3.PresignClient
}

func main() {
	c, err := app.Build(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	s3c := s3.NewFromConfig(c.AWS, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.UsePathStyle = true // localstack/dev friendliness
		}
	})
	a := &App{c: c, s3p: s3.NewPresignClient(s3c)}
	lambda.Start(a.handler)
}

// handler validates the evidence request and returns a presigned PUT URL.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	sub, err := authz.FromAPIGWv2(req, a.c.Env.DevBypassAuth)
	if err != nil {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	var body api.PresignRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.EvidenceKindOK(body.Kind); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}
	ext, err := validate.FilenameForKind(body.Kind, body.Filename)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}
	if err := validate.ContentTypeForKind(body.Kind, body.Filename, body.ContentType); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	// Evidence is appendable only while the claim is editable.
	claim, err := a.c.Repo.Get(ctx, sub, body.ClaimID)
	if errors.Is(err, ddb.ErrNotFound) {
		return httpx.Error(http.StatusNotFound, "claim not found")
	}
	if err != nil {
		log.Printf("presign: ddb err: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	if claim.Status != models.StatusDraft && claim.Status != models.StatusSubmitted {
		return httpx.Error(http.StatusConflict, "claim no longer accepts evidence")
	}

	key := s3io.BuildKey(sub, body.ClaimID, body.Kind, ulid.Make().String(), ext)
	headers := s3io.UploadHeaders(sub, body.ClaimID, body.Kind, body.ContentType)
	url, ttl, err := s3io.PresignPut(ctx, a.s3p, a.c.Env.Bucket, key, body.ContentType, map[string]string{
		"claim_id": body.ClaimID,
		"user_id":  sub,
		"kind":     body.Kind,
	}, a.c.Env.PresignTTL)
	if err != nil {
		log.Printf("presign err: %v", err)
		return httpx.Error(http.StatusInternalServerError, "presign error")
	}

	return httpx.JSON(http.StatusOK, api.PresignResponse{
		ClaimID:       body.ClaimID,
		S3Key:         key,
		PresignedURL:  url,
		ExpiresIn:     int(ttl.Seconds()),
		ContentType:   body.ContentType,
		UploadHeaders: headers,
	})
}
