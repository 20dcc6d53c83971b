package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/budget-backend/infra/cloudrun"
	"github.com/GregMSThompson/budget-backend/infra/docker"
	"github.com/GregMSThompson/budget-backend/infra/firestore"
	"github.com/GregMSThompson/budget-backend/infra/identity"
	"github.com/GregMSThompson/budget-backend/infra/kms"
	"github.com/GregMSThompson/budget-backend/infra/provider"
	"github.com/GregMSThompson/budget-backend/infra/secret"
	"github.com/GregMSThompson/budget-backend/infra/vertex"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		prov, err := provider.SetupDefaultProvider(ctx)
		if err != nil {
			return err
		}

		// firebase sign-in for the mobile client
		ident, err := identity.SetupIdentity(ctx, prov)
		if err != nil {
			return err
		}

		if err := firestore.SetupFirestore(ctx, prov); err != nil {
			return err
		}

		// classifier and assistant model backend
		if err := vertex.SetupVertex(ctx, prov); err != nil {
			return err
		}

		apiSA, err := cloudrun.CreateServiceAccount(ctx, prov)
		if err != nil {
			return err
		}

		if _, err := secret.SetupSecretManager(ctx, prov, apiSA); err != nil {
			return err
		}

		if _, err := kms.SetupKMS(ctx, prov); err != nil {
			return err
		}
		keyName, err := kms.CreateKey(ctx, prov, apiSA, "budget", "plaid-credentials")
		if err != nil {
			return err
		}

		repo, err := docker.CreateCloudrunRepo(ctx, prov)
		if err != nil {
			return err
		}

		url, err := cloudrun.SetupCloudRun(ctx, prov, apiSA, keyName, ident, repo)
		if err != nil {
			return err
		}
		ctx.Export("apiUrl", url)
		ctx.Export("credentialKey", keyName)

		return nil
	})
}
