package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// Resolver reads secret payloads from Secret Manager.
type Resolver struct {
	client    accessor
	projectID string
}

func NewResolver(client *secretmanager.Client, projectID string) *Resolver {
	return &Resolver{client: smAccessor{client}, projectID: projectID}
}

// Resolve accepts a bare secret id ("plaid-secret"), a secret resource
// ("projects/p/secrets/s") or a full version resource. Bare ids and secret
// resources resolve to the latest version.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	version := r.versionName(name)
	res, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: version})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("secret %s not found", version)
		}
		return "", fmt.Errorf("access secret %s: %w", version, err)
	}
	if res.GetPayload() == nil {
		return "", fmt.Errorf("secret %s has no payload", version)
	}
	return strings.TrimSpace(string(res.GetPayload().GetData())), nil
}

func (r *Resolver) versionName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "projects/") {
		name = fmt.Sprintf("projects/%s/secrets/%s", r.projectID, name)
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}
	return name
}

type smAccessor struct {
	client *secretmanager.Client
}

func (a smAccessor) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return a.client.AccessSecretVersion(ctx, req)
}
