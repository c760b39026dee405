package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"bazaarchat/pkg/logger"
)

// Credentials selects the service account. JSON wins over Path; with
// neither set the application default credentials are used.
type Credentials struct {
	ProjectID string
	JSON      string
	Path      string
}

func (c Credentials) options() ([]option.ClientOption, error) {
	switch {
	case c.JSON != "":
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.JSON))}, nil
	case c.Path != "":
		if _, err := os.Stat(c.Path); err != nil {
			return nil, fmt.Errorf("service account file %s: %w", c.Path, err)
		}
		logger.Info("Using Firebase service account from file: %s", c.Path)
		return []option.ClientOption{option.WithCredentialsFile(c.Path)}, nil
	default:
		logger.Info("Using application default credentials")
		return nil, nil
	}
}

// Clients bundles the Firebase services the API talks to.
type Clients struct {
	Auth      *auth.Client
	Firestore *firestore.Client
}

func NewClients(ctx context.Context, creds Credentials) (*Clients, error) {
	opts, err := creds.options()
	if err != nil {
		return nil, err
	}

	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: creds.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth: %w", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, creds.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	return &Clients{
		Auth:      authClient,
		Firestore: firestoreClient,
	}, nil
}

func (c *Clients) Close() error {
	return c.Firestore.Close()
}
