package vertex

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

// SetupVertex enables the Vertex AI API unless the stack runs the classifier
// against the Gemini API with a key.
func SetupVertex(ctx *pulumi.Context, prov *gcp.Provider) error {
	appCfg := config.New(ctx, "budget")
	if appCfg.Get("classifierBackend") == "gemini" {
		return nil
	}
	_, err := projects.NewService(ctx, "vertexService", &projects.ServiceArgs{
		Service:          pulumi.String("aiplatform.googleapis.com"),
		DisableOnDestroy: pulumi.Bool(false),
	},
		pulumi.Provider(prov),
	)
	return err
}
