package internal

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dgellow/devreg/internal/activation"
	"github.com/dgellow/devreg/internal/authserver"
	"github.com/dgellow/devreg/internal/compat"
	"github.com/dgellow/devreg/internal/config"
	"github.com/dgellow/devreg/internal/crypto"
	"github.com/dgellow/devreg/internal/log"
	"github.com/dgellow/devreg/internal/registration"
	"github.com/dgellow/devreg/internal/storage"
)

var (
	// ErrUnknownState is returned when no pending registration matches a state.
	ErrUnknownState = errors.New("unknown or expired registration state")

	// ErrNoResponse is returned when a follow-up is requested before the
	// registration redirect was handled.
	ErrNoResponse = errors.New("no registration response recorded")
)

// DevReg drives device registrations: it starts them, records the
// redirect result, and chains it into activation or authorization
// follow-ups. Pending registrations live in envelopes keyed by state.
type DevReg struct {
	config        config.Config
	authServer    authserver.Configuration
	activationURL string
	decodeOpts    []registration.DecodeOption
	store         storage.Store
	cleanup       *storage.CleanupManager
}

// BeginResult is what a caller needs to send the device to the
// registration endpoint.
type BeginResult struct {
	State           string `json:"state"`
	RegistrationURL string `json:"registration_url"`
}

// NewDevReg creates the application with all dependencies built
func NewDevReg(ctx context.Context, cfg config.Config) (*DevReg, error) {
	authServer, err := cfg.AuthServer()
	if err != nil {
		return nil, fmt.Errorf("invalid authorization server: %w", err)
	}
	activationURL, err := cfg.ActivationURL()
	if err != nil {
		return nil, fmt.Errorf("invalid activation endpoint: %w", err)
	}

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	d := &DevReg{
		config:        cfg,
		authServer:    authServer,
		activationURL: activationURL,
		decodeOpts:    []registration.DecodeOption{registration.WithRequiredCodes(cfg.Codec.RequireCodes)},
		store:         store,
	}

	if cfg.Storage.CleanupInterval > 0 {
		d.cleanup = storage.NewCleanupManager(store, cfg.Storage.CleanupInterval)
		d.cleanup.Start(ctx)
	}

	log.LogDebugWithFields("devreg", "Device registration ready", map[string]any{
		"registrationEndpoint": authServer.RegistrationEndpoint,
		"activationEndpoint":   activationURL,
		"storage":              string(cfg.Storage.Kind),
		"requireCodes":         cfg.Codec.RequireCodes,
	})
	return d, nil
}

// setupStorage creates the envelope store based on configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.Store, error) {
	sc := cfg.Storage

	var store storage.Store
	switch sc.Kind {
	case config.StorageKindFirestore:
		collection := sc.FirestoreCollection
		if collection == "" {
			collection = storage.DefaultFirestoreCollection
		}
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    sc.GCPProject,
			"database":   sc.FirestoreDatabase,
			"collection": collection,
		})
		fs, err := storage.NewFirestoreStore(ctx, sc.GCPProject, sc.FirestoreDatabase, collection, sc.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		store = fs
	case config.StorageKindFile:
		log.LogInfoWithFields("storage", "Using file storage", map[string]any{
			"path": sc.Path,
		})
		fs, err := storage.NewFileStore(sc.Path, sc.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create file storage: %w", err)
		}
		store = fs
	default:
		log.LogDebugWithFields("storage", "Using in-memory storage", nil)
		store = storage.NewMemoryStore(sc.TTL)
	}

	if sc.EncryptionKey == "" {
		return store, nil
	}
	encryptor, err := crypto.NewEncryptor([]byte(sc.EncryptionKey))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	encrypted, err := storage.NewEncryptedStore(store, encryptor)
	if err != nil {
		store.Close()
		return nil, err
	}
	return encrypted, nil
}

// Begin builds a registration request from configuration and records it
// as pending under its state.
func (d *DevReg) Begin(ctx context.Context) (BeginResult, error) {
	req, err := registration.NewRequestBuilder(d.authServer, d.config.RedirectURI).
		SetScopes(d.config.Scopes...).
		SetDeviceName(d.config.DeviceName).
		SetProductID(d.config.ProductID).
		Build()
	if err != nil {
		return BeginResult{}, err
	}
	state, _ := req.State()

	registrationURL, err := req.RegistrationURL()
	if err != nil {
		return BeginResult{}, err
	}

	env := registration.MapEnvelope{}
	if err := registration.AttachRequest(env, req); err != nil {
		return BeginResult{}, err
	}
	if err := d.store.SaveEnvelope(ctx, state, env); err != nil {
		return BeginResult{}, fmt.Errorf("saving pending registration: %w", err)
	}

	log.LogInfoWithFields("devreg", "Registration started", map[string]any{
		"deviceName": d.config.DeviceName,
	})
	return BeginResult{State: state, RegistrationURL: registrationURL}, nil
}

// HandleRedirect parses the redirect the registration endpoint sent back,
// pairs it with the pending request named by its state, and records the
// response next to that request.
func (d *DevReg) HandleRedirect(ctx context.Context, rawURI string) (*registration.Response, error) {
	uri, err := url.Parse(rawURI)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect uri: %v", registration.ErrInvalidArgument, err)
	}
	state := uri.Query().Get(registration.ParamState)
	if state == "" {
		return nil, fmt.Errorf("%w: redirect carries no state", ErrUnknownState)
	}

	env, err := d.loadEnvelope(ctx, state)
	if err != nil {
		return nil, err
	}
	req, ok, err := registration.RequestFromEnvelope(env)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownState
	}

	resp := registration.FromRedirect(req, uri)
	if err := resp.AttachTo(env); err != nil {
		return nil, err
	}
	if err := d.store.SaveEnvelope(ctx, state, env); err != nil {
		return nil, fmt.Errorf("saving registration response: %w", err)
	}

	_, hasCode := resp.AuthorizationCode()
	_, hasActivation := resp.ActivationCode()
	log.LogInfoWithFields("devreg", "Registration redirect handled", map[string]any{
		"has_code":            hasCode,
		"has_activation_code": hasActivation,
	})
	return resp, nil
}

// Response returns the recorded registration response for state.
func (d *DevReg) Response(ctx context.Context, state string) (*registration.Response, error) {
	env, err := d.loadEnvelope(ctx, state)
	if err != nil {
		return nil, err
	}
	resp, ok, err := registration.FromEnvelope(env, d.decodeOpts...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoResponse
	}
	return resp, nil
}

// Activate builds the activation request for the registration behind state.
func (d *DevReg) Activate(ctx context.Context, state string) (*activation.Request, error) {
	resp, err := d.Response(ctx, state)
	if err != nil {
		return nil, err
	}
	return resp.CreateActivationRequest(d.activationURL)
}

// Compat converts the registration behind state into a standard
// authorization code response for the configured client.
func (d *DevReg) Compat(ctx context.Context, state string) (*compat.AuthorizationResponse, error) {
	resp, err := d.Response(ctx, state)
	if err != nil {
		return nil, err
	}
	return resp.ToCompatibilityResponse(d.config.ClientID)
}

func (d *DevReg) loadEnvelope(ctx context.Context, state string) (registration.MapEnvelope, error) {
	slots, err := d.store.LoadEnvelope(ctx, state)
	if errors.Is(err, storage.ErrEnvelopeNotFound) {
		return nil, ErrUnknownState
	}
	if err != nil {
		return nil, fmt.Errorf("loading registration: %w", err)
	}
	if slots == nil {
		slots = map[string]string{}
	}
	return registration.MapEnvelope(slots), nil
}

// Close stops background cleanup and releases the store
func (d *DevReg) Close() error {
	if d.cleanup != nil {
		d.cleanup.Stop()
	}
	return d.store.Close()
}
