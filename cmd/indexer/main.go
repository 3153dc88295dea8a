// Package main records finished evidence uploads on their claims after S3 PUT.
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/kylejryan/insurance-claims-pipeline/internal/app"
	"github.com/kylejryan/insurance-claims-pipeline/internal/s3io"
	"github.com/kylejryan/insurance-claims-pipeline/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	c   *app.Components
	s3c *s3.Client
}

func main() {
	c, err := app.Build(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	s3c := s3.NewFromConfig(c.AWS, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.UsePathStyle = true
		}
	})
	a := &App{c: c, s3c: s3c}
	lambda.Start(a.handler)
}

// handler processes S3 event records, appending each object to its claim.
func (a *App) handler(ctx context.Context, ev events.S3Event) (any, error) {
	for _, rec := range ev.Records {
		if err := a.processS3Record(ctx, rec); err != nil {
			log.Printf("indexer: process error: %v", err)
		}
	}
	// Late-photo uploads can relaunch the processing pipeline; let it finish.
	a.c.Orchestrator.Wait()
	return nil, nil
}

// processS3Record handles a single S3 event record.
func (a *App) processS3Record(ctx context.Context, record events.S3EventRecord) error {
	bucket := record.S3.Bucket.Name
	keyEsc := record.S3.Object.Key
	key, _ := url.QueryUnescape(keyEsc)

	meta, err := a.getObjectMetadata(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("head %s: %w", key, err)
	}

	// Prefer metadata-sourced IDs; fall back to path parsing.
	userID := strings.TrimSpace(meta["user_id"])
	claimID := strings.TrimSpace(meta["claim_id"])
	kind := strings.TrimSpace(meta["kind"])
	if userID == "" || claimID == "" || kind == "" {
		u2, c2, k2, ok := s3io.ParseKey(key)
		if !ok {
			return fmt.Errorf("bad key %q", key)
		}
		if userID == "" {
			userID = u2
		}
		if claimID == "" {
			claimID = c2
		}
		if kind == "" {
			kind = k2
		}
	}

	attr := "document_urls"
	if kind == validate.KindPhotos {
		attr = "damage_photo_urls"
	}
	objURL := s3io.ObjectURL(bucket, a.c.Env.Region, key)
	if err := a.c.Orchestrator.RecordEvidence(ctx, userID, claimID, attr, objURL); err != nil {
		return fmt.Errorf("record %s for %s/%s: %w", kind, userID, claimID, err)
	}
	log.Printf("indexer: recorded %s evidence for %s/%s", kind, userID, claimID)
	return nil
}

// getObjectMetadata fetches the object's user-defined metadata, lowercased.
func (a *App) getObjectMetadata(ctx context.Context, bucket, key string) (map[string]string, error) {
	ho, err := a.s3c.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(ho.Metadata))
	for k, v := range ho.Metadata {
		m[strings.ToLower(k)] = v
	}
	return m, nil
}
