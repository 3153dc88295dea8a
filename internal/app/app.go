// Package app wires the shared collaborators for the Lambda entrypoints.
package app

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/kylejryan/insurance-claims-pipeline/internal/assessment"
	"github.com/kylejryan/insurance-claims-pipeline/internal/awsutil"
	"github.com/kylejryan/insurance-claims-pipeline/internal/config"
	"github.com/kylejryan/insurance-claims-pipeline/internal/ddb"
	"github.com/kylejryan/insurance-claims-pipeline/internal/ledger"
	"github.com/kylejryan/insurance-claims-pipeline/internal/notify"
	"github.com/kylejryan/insurance-claims-pipeline/internal/pipeline"
)

// Components bundles everything a handler can need. Fields for collaborators
// that are not configured stay nil; the orchestrator gets no-op stand-ins.
type Components struct {
	Env          config.Env
	AWS          aws.Config
	Endpoint     string // custom AWS endpoint, non-empty when running against localstack
	Repo         *ddb.Repo
	Registry     *notify.Registry
	Orchestrator *pipeline.Orchestrator
}

// Build loads config and wires the store, external clients and orchestrator.
func Build(ctx context.Context) (*Components, error) {
	env := config.MustLoad()
	cfg, endpoint, err := awsutil.Load(ctx, env.Region)
	if err != nil {
		return nil, err
	}

	repo := &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}

	var pub notify.Publisher = notify.Nop{}
	var registry *notify.Registry
	if env.ConnTable != "" {
		registry = &notify.Registry{DB: dynamodb.NewFromConfig(cfg), Table: env.ConnTable}
	}
	if registry != nil && env.WSEndpoint != "" {
		mgmt := apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
			o.BaseEndpoint = aws.String(env.WSEndpoint)
		})
		pub = &notify.WSPublisher{API: mgmt, Registry: registry}
	}

	assessor := assessment.New(env.AssessmentURL)
	assessor.HTTP.Timeout = env.AssessTimeout

	orch := pipeline.New(repo, assessor, ledger.New(env.LedgerRPCURL), pub)
	orch.AssessTimeout = env.AssessTimeout
	if env.AdminTopicARN != "" {
		orch.Admin = &notify.AdminFanout{SNS: sns.NewFromConfig(cfg), TopicARN: env.AdminTopicARN}
	}

	return &Components{
		Env:          env,
		AWS:          cfg,
		Endpoint:     endpoint,
		Repo:         repo,
		Registry:     registry,
		Orchestrator: orch,
	}, nil
}
