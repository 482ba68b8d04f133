package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// secretPrefix marks a config value that names a Secret Manager secret
// instead of holding the value itself.
const secretPrefix = "_secret:"

// GetSecret retrieves a secret from Google Secret Manager
func GetSecret(ctx context.Context, secretName string) (string, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return "", fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer func() { _ = client.Close() }()

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretName),
	}

	result, err := client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}

// IsSecretReference reports whether value is a "_secret:<name>" reference.
func IsSecretReference(value string) bool {
	return strings.HasPrefix(value, secretPrefix)
}

// ResolveDatabaseURL returns value unchanged unless it is a secret reference,
// in which case the DSN is fetched from Secret Manager.
func ResolveDatabaseURL(ctx context.Context, value string) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}

	secretName := strings.TrimSpace(strings.TrimPrefix(value, secretPrefix))
	if secretName == "" {
		return "", fmt.Errorf("secret reference %q has no secret name", value)
	}

	dsn, err := GetSecret(ctx, secretName)
	if err != nil {
		return "", fmt.Errorf("failed to get database URL secret: %w", err)
	}

	return strings.TrimSpace(dsn), nil
}
