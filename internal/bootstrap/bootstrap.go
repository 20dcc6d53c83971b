package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	kms "cloud.google.com/go/kms/apiv1"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"firebase.google.com/go/v4/auth"

	geminiclient "github.com/GregMSThompson/budget-backend/internal/client/gemini"
	plaidclient "github.com/GregMSThompson/budget-backend/internal/client/plaid"
	vertexclient "github.com/GregMSThompson/budget-backend/internal/client/vertex"
	"github.com/GregMSThompson/budget-backend/internal/config"
	"github.com/GregMSThompson/budget-backend/internal/crypto"
	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/secrets"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

// Generator is the model backend shared by the classifier and the assistant.
type Generator interface {
	GenerateContent(ctx context.Context, req dto.GenerateRequest) (dto.GenerateResponse, error)
	Close() error
}

type Bootstrap struct {
	Log       *slog.Logger
	Firestore *firestore.Client
	Firebase  *auth.Client
	KMS       *crypto.KMS
	Plaid     *plaidclient.Adapter
	Model     Generator

	kmsClient *kms.KeyManagementClient
}

func Run(cfg *config.Config) (*Bootstrap, error) {
	var err error
	applicationCtx := context.Background()
	bs := new(Bootstrap)

	bs.Log = logger.New(cfg.LogLevel, logger.NewCloudRunHandler)
	bs.Firestore, err = InitFirestore(applicationCtx, cfg.ProjectID)
	if err != nil {
		return bs, fmt.Errorf("firestore: %w", err)
	}
	bs.Firebase, err = InitFirebase(applicationCtx)
	if err != nil {
		return bs, fmt.Errorf("firebase: %w", err)
	}

	bs.kmsClient, err = kms.NewKeyManagementClient(applicationCtx)
	if err != nil {
		return bs, fmt.Errorf("kms: %w", err)
	}
	bs.KMS = crypto.NewKMS(bs.kmsClient, cfg.KMSKeyName)

	plaidSecret, err := resolvePlaidSecret(applicationCtx, cfg)
	if err != nil {
		return bs, err
	}
	bs.Plaid = plaidclient.NewAdapter(plaidclient.Options{
		ClientID:     cfg.PlaidClientID,
		Secret:       plaidSecret,
		Environment:  cfg.PlaidEnvironment,
		WebhookURL:   cfg.PlaidWebhookURL,
		CountryCodes: cfg.PlaidCountryCodes,
	})

	bs.Model, err = initModel(applicationCtx, bs.Log, cfg)
	if err != nil {
		return bs, fmt.Errorf("model backend %s: %w", cfg.ClassifierBackend, err)
	}

	return bs, nil
}

// resolvePlaidSecret prefers Secret Manager when a secret name is configured.
func resolvePlaidSecret(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.PlaidSecretName == "" {
		return cfg.PlaidSecret, nil
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("secret manager: %w", err)
	}
	defer client.Close()

	secret, err := secrets.NewResolver(client, cfg.ProjectID).Resolve(ctx, cfg.PlaidSecretName)
	if err != nil {
		return "", fmt.Errorf("resolve plaid secret: %w", err)
	}
	return secret, nil
}

func initModel(ctx context.Context, log *slog.Logger, cfg *config.Config) (Generator, error) {
	if cfg.ClassifierBackend == config.ClassifierGemini {
		adapter, err := geminiclient.NewAdapter(ctx, log, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	}
	adapter, err := vertexclient.NewAdapter(ctx, log, cfg.ProjectID, cfg.Region, cfg.VertexModel)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// Close releases every client that was opened, even after a partial Run.
func (bs *Bootstrap) Close() error {
	var errList []error
	if bs.Model != nil {
		errList = append(errList, bs.Model.Close())
	}
	if bs.kmsClient != nil {
		errList = append(errList, bs.kmsClient.Close())
	}
	if bs.Firestore != nil {
		errList = append(errList, bs.Firestore.Close())
	}
	return errors.Join(errList...)
}
