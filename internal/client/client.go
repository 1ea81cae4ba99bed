// Package client assembles the synchronization and workflow core into one
// object per running client. Role-specific capabilities are reached through
// views that exist only while the session identity has that role.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/clinical"
	"github.com/aimed/aimed/internal/domain/emergency"
	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/domain/prescription"
	"github.com/aimed/aimed/internal/domain/workflow"
	"github.com/aimed/aimed/internal/platform/credential"
	"github.com/aimed/aimed/internal/platform/gateway"
	"github.com/aimed/aimed/internal/platform/mirror"
	"github.com/aimed/aimed/internal/platform/session"
	"github.com/aimed/aimed/internal/platform/summarizer"
	"github.com/aimed/aimed/internal/platform/syncengine"
)

// ErrWrongRole is returned when a view is requested for a role the current
// identity does not have.
var ErrWrongRole = errors.New("current identity has a different role")

// ErrUnknownUser is returned when an operation names a user absent from the
// mirror.
var ErrUnknownUser = errors.New("user not found")

// Options configures a Client. BaseURL and Credentials are required.
type Options struct {
	BaseURL      string
	Credentials  credential.Store
	PollInterval time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
	// Summarizer is the external symptom summarization service. Nil selects
	// the canned summary.
	Summarizer summarizer.Summarizer
}

type Client struct {
	gw      *gateway.Client
	store   *mirror.Store
	session *session.Manager
	engine  *syncengine.Engine

	workflow      *workflow.Service
	prescriptions *prescription.Service
	emergency     *emergency.Service
	clinical      *clinical.Service

	logger zerolog.Logger
}

func New(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	var gwOpts []gateway.Option
	if opts.HTTPClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Timeout > 0 {
		gwOpts = append(gwOpts, gateway.WithTimeout(opts.Timeout))
	}
	gw, err := gateway.New(opts.BaseURL, opts.Credentials, gwOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	store := mirror.New()
	sess := session.NewManager(gw, opts.Credentials, store, logger)
	engine := syncengine.New(gw, store, logger,
		syncengine.WithInterval(opts.PollInterval),
		syncengine.WithUnauthorizedHandler(sess.Logout),
	)
	sess.AddListener(engine)

	sum := summarizer.WithFallback(opts.Summarizer, logger.With().Str("component", "summarizer").Logger())

	return &Client{
		gw:            gw,
		store:         store,
		session:       sess,
		engine:        engine,
		workflow:      workflow.NewService(gw, store, sum, logger),
		prescriptions: prescription.NewService(gw, store, logger),
		emergency:     emergency.NewService(gw, store, logger),
		clinical:      clinical.NewService(gw, store, sess, logger),
		logger:        logger.With().Str("component", "client").Logger(),
	}, nil
}

// -- Session --

// Login signs in and starts synchronization.
func (c *Client) Login(ctx context.Context, email, password string, role entity.Role) error {
	return c.session.Login(ctx, email, password, role)
}

// Register creates an account, signs in and starts synchronization.
func (c *Client) Register(ctx context.Context, name, email, password string, role entity.Role) error {
	return c.session.Register(ctx, name, email, password, role)
}

// Logout ends the session, stops synchronization and empties the mirror.
func (c *Client) Logout() {
	c.session.Logout()
}

// Restore resumes a persisted session. It reports false when there was
// nothing to resume.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	return c.session.RestoreSession(ctx)
}

// Identity returns the current actor.
func (c *Client) Identity() (entity.User, bool) {
	return c.session.Current()
}

// Refresh runs one synchronous refresh of the mirror.
func (c *Client) Refresh(ctx context.Context) error {
	return c.engine.RefreshNow(ctx)
}

// LastSync reports when the mirror last committed and the most recent
// refresh error since then.
func (c *Client) LastSync() (time.Time, error) {
	return c.engine.LastSync()
}

// Snapshot returns a copy of every mirrored collection.
func (c *Client) Snapshot() entity.Snapshot {
	return c.store.Snapshot()
}

// Version increases on every mirror mutation.
func (c *Client) Version() uint64 {
	return c.store.Version()
}

// Close stops synchronization without ending the session and waits for
// in-flight refreshes. The persisted credential is kept.
func (c *Client) Close() {
	c.engine.Stop()
	c.engine.Wait()
}

// -- Shared capabilities --

// Thread returns one appointment's chat in display order.
func (c *Client) Thread(appointmentID string) []entity.Message {
	return c.clinical.Thread(appointmentID)
}

// SendMessage posts to an appointment's chat as the current identity.
func (c *Client) SendMessage(ctx context.Context, appointmentID, content string, kind entity.MessageKind) (entity.Message, error) {
	u, ok := c.Identity()
	if !ok {
		return entity.Message{}, session.ErrNoSession
	}
	return c.clinical.SendMessage(ctx, u, appointmentID, content, kind)
}

// UpdateProfile changes the current identity's profile.
func (c *Client) UpdateProfile(ctx context.Context, patch entity.UserPatch) (entity.User, error) {
	u, ok := c.Identity()
	if !ok {
		return entity.User{}, session.ErrNoSession
	}
	return c.clinical.UpdateProfile(ctx, u, patch)
}

// Doctors lists the mirrored clinicians.
func (c *Client) Doctors() []entity.User {
	var out []entity.User
	for _, u := range c.store.Users() {
		if u.Role == entity.RoleDoctor {
			out = append(out, u)
		}
	}
	return out
}

// -- Views --

// bound reports session.ErrNoSession unless u is still the current
// identity.
func (c *Client) bound(u entity.User) error {
	cur, ok := c.Identity()
	if !ok || cur.ID != u.ID {
		return session.ErrNoSession
	}
	return nil
}

func (c *Client) identityAs(role entity.Role) (entity.User, error) {
	u, ok := c.Identity()
	if !ok {
		return entity.User{}, session.ErrNoSession
	}
	if u.Role != role {
		return entity.User{}, fmt.Errorf("%w: %s is %s, not %s", ErrWrongRole, u.ID, u.Role, role)
	}
	return u, nil
}

// Patient returns the patient view of the current identity.
func (c *Client) Patient() (*PatientView, error) {
	u, err := c.identityAs(entity.RolePatient)
	if err != nil {
		return nil, err
	}
	return &PatientView{c: c, user: u}, nil
}

// Clinician returns the clinician view of the current identity.
func (c *Client) Clinician() (*ClinicianView, error) {
	u, err := c.identityAs(entity.RoleDoctor)
	if err != nil {
		return nil, err
	}
	return &ClinicianView{c: c, user: u}, nil
}

// Institution returns the institution view of the current identity.
func (c *Client) Institution() (*InstitutionView, error) {
	u, err := c.identityAs(entity.RoleInstitution)
	if err != nil {
		return nil, err
	}
	return &InstitutionView{c: c, user: u}, nil
}
