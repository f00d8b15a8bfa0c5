package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"caixinha-backend/internal/config"
)

// Firebase bundles the Firebase Admin clients the service depends on:
// Firestore for documents, Auth for ID-token verification and Cloud
// Messaging for push. Constructed once in main and injected; nothing
// in the codebase reaches for a global client.
type Firebase struct {
	App       *firebase.App
	Firestore *firestore.Client
	Auth      *auth.Client
	Messaging *messaging.Client
}

// NewFirebase initializes the Firebase Admin SDK and its clients.
// Messaging is optional: a failure there is logged by the caller and
// push stays disabled, but Firestore and Auth are required.
func NewFirebase(ctx context.Context, cfg *config.Config) (*Firebase, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("initialize auth client: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		// Push is best-effort; leave Messaging nil.
		msgClient = nil
	}

	return &Firebase{
		App:       app,
		Firestore: fs,
		Auth:      authClient,
		Messaging: msgClient,
	}, nil
}

// Close releases the Firestore connection.
func (f *Firebase) Close() error {
	if f.Firestore != nil {
		return f.Firestore.Close()
	}
	return nil
}
