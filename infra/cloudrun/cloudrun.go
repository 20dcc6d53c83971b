package cloudrun

import (
	"fmt"
	"strconv"

	"github.com/pulumi/pulumi-docker/sdk/v4/go/docker"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/cloudrun"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/GregMSThompson/budget-backend/infra/common"
	dockerrepo "github.com/GregMSThompson/budget-backend/infra/docker"
	"github.com/GregMSThompson/budget-backend/infra/secret"
)

type secretRefs struct {
	plaidClientIDName pulumi.StringOutput
	plaidSecretName   pulumi.StringOutput
	geminiAPIKeyName  pulumi.StringOutput
	hasGeminiKey      bool
}

// SetupCloudRun builds and deploys the API image and returns the service URL.
func SetupCloudRun(ctx *pulumi.Context,
	prov *gcp.Provider,
	apiSA *serviceaccount.Account,
	keyName pulumi.StringOutput,
	res ...pulumi.Resource) (pulumi.StringOutput, error) {
	empty := pulumi.String("").ToStringOutput()

	img, err := buildApiImage(ctx, res...)
	if err != nil {
		return empty, err
	}

	sr, err := createSecrets(ctx)
	if err != nil {
		return empty, err
	}

	srv, err := enableCloudRun(ctx, prov)
	if err != nil {
		return empty, err
	}

	svc, err := createCloudRunService(ctx, img, apiSA, sr, keyName, prov, srv)
	if err != nil {
		return empty, err
	}

	if err = setIAMAccessPolicy(ctx, svc, prov); err != nil {
		return empty, err
	}

	return svc.Statuses.Index(pulumi.Int(0)).Url(), nil
}

func buildApiImage(ctx *pulumi.Context, res ...pulumi.Resource) (*docker.Image, error) {
	gcpCfg := config.New(ctx, "gcp")
	projectID := gcpCfg.Require("project")
	region := gcpCfg.Require("region")

	hash, err := common.SourceHash("../", "infra", ".git")
	if err != nil {
		return nil, err
	}

	return docker.NewImage(ctx, "apiImage", &docker.ImageArgs{
		Build: docker.DockerBuildArgs{
			Platform:   pulumi.String("linux/amd64"),
			Context:    pulumi.String(".."),
			Dockerfile: pulumi.String("../cmd/api/Dockerfile"),
		},
		ImageName: pulumi.String(fmt.Sprintf("%s-docker.pkg.dev/%s/%s/budget-api:%s", region, projectID, dockerrepo.RepositoryID, hash)),
	},
		pulumi.DependsOn(res),
	)
}

func enableCloudRun(ctx *pulumi.Context, prov *gcp.Provider) (*projects.Service, error) {
	return projects.NewService(ctx, "cloudRunService", &projects.ServiceArgs{
		Service: pulumi.String("run.googleapis.com"),
	},
		pulumi.Provider(prov),
	)
}

// CreateServiceAccount creates the identity the API runs as, with Firestore
// and Vertex AI access. Secret and key grants are added by their packages.
func CreateServiceAccount(ctx *pulumi.Context, prov *gcp.Provider) (*serviceaccount.Account, error) {
	gcpCfg := config.New(ctx, "gcp")
	projectID := gcpCfg.Require("project")

	apiSA, err := serviceaccount.NewAccount(ctx, "apiServiceAccount", &serviceaccount.AccountArgs{
		AccountId:   pulumi.String("budget-api"),
		DisplayName: pulumi.String("Budget API Service Account"),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}

	member := apiSA.Email.ApplyT(func(email string) string {
		return fmt.Sprintf("serviceAccount:%s", email)
	}).(pulumi.StringOutput)

	roles := map[string]string{
		"firestoreAccess": "roles/datastore.user",
		"vertexAccess":    "roles/aiplatform.user",
	}
	for name, role := range roles {
		_, err = projects.NewIAMMember(ctx, name, &projects.IAMMemberArgs{
			Role:    pulumi.String(role),
			Member:  member,
			Project: pulumi.String(projectID),
		},
			pulumi.Provider(prov),
		)
		if err != nil {
			return nil, err
		}
	}

	return apiSA, nil
}

func plainEnv(name, value string) *cloudrun.ServiceTemplateSpecContainerEnvArgs {
	return &cloudrun.ServiceTemplateSpecContainerEnvArgs{
		Name:  pulumi.String(name),
		Value: pulumi.String(value),
	}
}

func secretEnv(name string, secretID pulumi.StringOutput) *cloudrun.ServiceTemplateSpecContainerEnvArgs {
	return &cloudrun.ServiceTemplateSpecContainerEnvArgs{
		Name: pulumi.String(name),
		ValueFrom: &cloudrun.ServiceTemplateSpecContainerEnvValueFromArgs{
			SecretKeyRef: &cloudrun.ServiceTemplateSpecContainerEnvValueFromSecretKeyRefArgs{
				Name: secretID,
				Key:  pulumi.String("latest"),
			},
		},
	}
}

func createCloudRunService(ctx *pulumi.Context,
	img *docker.Image,
	apiSA *serviceaccount.Account,
	sr *secretRefs,
	keyName pulumi.StringOutput,
	prov *gcp.Provider,
	res ...pulumi.Resource) (*cloudrun.Service, error) {
	gcpCfg := config.New(ctx, "gcp")
	crCfg := config.New(ctx, "cloudrun")
	plaidCfg := config.New(ctx, "plaid")
	appCfg := config.New(ctx, "budget")

	projectID := gcpCfg.Require("project")
	region := gcpCfg.Require("region")
	minScale := crCfg.Require("minScale")
	maxScale := crCfg.Require("maxScale")
	cpu := crCfg.Require("cpu")
	memory := crCfg.Require("memory")
	concurrency := crCfg.Require("concurrency")
	logLevel := crCfg.Require("logLevel")
	timeout, err := strconv.Atoi(crCfg.Require("timeout"))
	if err != nil {
		return nil, fmt.Errorf("cloudrun:timeout: %w", err)
	}
	plaidEnv := plaidCfg.Require("environment")
	webhookURL := plaidCfg.Get("webhookUrl")
	backend := appCfg.Get("classifierBackend")
	if backend == "" {
		backend = "vertex"
	}

	envs := cloudrun.ServiceTemplateSpecContainerEnvArray{
		plainEnv("PROJECT_ID", projectID),
		plainEnv("REGION", region),
		plainEnv("LOG_LEVEL", logLevel),
		plainEnv("PLAID_ENVIRONMENT", plaidEnv),
		plainEnv("PLAID_WEBHOOK_URL", webhookURL),
		plainEnv("CLASSIFIER_BACKEND", backend),
		&cloudrun.ServiceTemplateSpecContainerEnvArgs{
			Name:  pulumi.String("KMS_KEY_NAME"),
			Value: keyName,
		},
		&cloudrun.ServiceTemplateSpecContainerEnvArgs{
			Name:  pulumi.String("PLAID_SECRET_NAME"),
			Value: sr.plaidSecretName,
		},
		secretEnv("PLAID_CLIENT_ID", sr.plaidClientIDName),
	}
	if sr.hasGeminiKey {
		envs = append(envs, secretEnv("GEMINI_API_KEY", sr.geminiAPIKeyName))
	}

	return cloudrun.NewService(ctx, "apiService", &cloudrun.ServiceArgs{
		Location: pulumi.String(region),

		Template: &cloudrun.ServiceTemplateArgs{

			Metadata: &cloudrun.ServiceTemplateMetadataArgs{
				Annotations: pulumi.StringMap{
					"autoscaling.knative.dev/minScale": pulumi.String(minScale),
					"autoscaling.knative.dev/maxScale": pulumi.String(maxScale),

					"run.googleapis.com/cpu":    pulumi.String(cpu),
					"run.googleapis.com/memory": pulumi.String(memory),

					// sync runs inside the request, so CPU is only needed while serving
					"run.googleapis.com/cpu-throttling": pulumi.String("true"),

					"run.googleapis.com/container-concurrency": pulumi.String(concurrency),
				},
			},

			Spec: &cloudrun.ServiceTemplateSpecArgs{
				ServiceAccountName: apiSA.Email,
				TimeoutSeconds:     pulumi.Int(timeout),

				Containers: cloudrun.ServiceTemplateSpecContainerArray{
					&cloudrun.ServiceTemplateSpecContainerArgs{
						Image: img.ImageName,
						Ports: cloudrun.ServiceTemplateSpecContainerPortArray{
							&cloudrun.ServiceTemplateSpecContainerPortArgs{
								ContainerPort: pulumi.Int(8080),
							},
						},
						Envs: envs,
					},
				},
			},
		},
	},
		pulumi.Provider(prov),
		pulumi.DependsOn(res),
	)
}

// setIAMAccessPolicy makes the service publicly invocable. Firebase ID tokens
// are checked by the API itself, and the Plaid webhook arrives unauthenticated.
func setIAMAccessPolicy(ctx *pulumi.Context, svc *cloudrun.Service, prov *gcp.Provider) error {
	gcpCfg := config.New(ctx, "gcp")
	region := gcpCfg.Require("region")

	_, err := cloudrun.NewIamMember(ctx, "publicInvoker", &cloudrun.IamMemberArgs{
		Service:  svc.Name,
		Location: pulumi.String(region),
		Role:     pulumi.String("roles/run.invoker"),
		Member:   pulumi.String("allUsers"),
	},
		pulumi.Provider(prov),
	)
	return err
}

func createSecrets(ctx *pulumi.Context) (*secretRefs, error) {
	var err error
	sr := new(secretRefs)

	plaidCfg := config.New(ctx, "plaid")
	plaidClientID := plaidCfg.RequireSecret("clientId")
	plaidSecret := plaidCfg.RequireSecret("secret")

	sr.plaidClientIDName, err = secret.AddSecret(ctx, "plaidClientIdSecret", "plaid-client-id", plaidClientID)
	if err != nil {
		return nil, err
	}

	sr.plaidSecretName, err = secret.AddSecret(ctx, "plaidSecretSecret", "plaid-secret", plaidSecret)
	if err != nil {
		return nil, err
	}

	appCfg := config.New(ctx, "budget")
	if appCfg.Get("classifierBackend") == "gemini" {
		sr.geminiAPIKeyName, err = secret.AddSecret(ctx, "geminiApiKeySecret", "gemini-api-key", appCfg.RequireSecret("geminiApiKey"))
		if err != nil {
			return nil, err
		}
		sr.hasGeminiKey = true
	}

	return sr, nil
}
