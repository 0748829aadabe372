package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// LaneHealth is the read-only health snapshot for one relay lane. RttMs,
// IncRate, and Score are zero until the prober has observed the lane.
type LaneHealth struct {
	ID            string  `json:"id"`
	Healthy       bool    `json:"healthy"`
	Authenticated bool    `json:"authenticated"`
	RttMs         float64 `json:"rtt_ms,omitempty"`
	// IncRate is the historical inclusion rate in [0,1].
	IncRate float64 `json:"inc_rate,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Lane is one external relay endpoint the fan-out can submit a bundle to.
// A successful submission returns the relay's bundle-hash-like identifier.
type Lane interface {
	ID() string
	SubmitBundle(ctx context.Context, plan *bundle.Plan) (string, error)
}

// LaneConfig declares one configured lane.
type LaneConfig struct {
	ID string `yaml:"id"`
	// Host is the lane endpoint, url or host:port.
	Host string `yaml:"host"`
	// AuthSecret, when set, marks the lane authenticated and signs a jwt
	// bearer token onto every submission.
	AuthSecret string `yaml:"authSecret,omitempty"`
	// StatusPath polled by the health prober. Defaults to /status.
	StatusPath string `yaml:"statusPath,omitempty"`
}

// submitAck is the relay acknowledgement shape.
type submitAck struct {
	BundleHash string `json:"bundle_hash"`
}

// HTTPLane submits bundles to a relay endpoint over HTTP.
type HTTPLane struct {
	id         string
	client     *Client
	authSecret string
	statusPath string
}

// NewHTTPLane builds a lane from its config.
func NewHTTPLane(cfg LaneConfig, opts ...ClientOpt) (*HTTPLane, error) {
	client, err := NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build client for lane %s", cfg.ID)
	}
	statusPath := cfg.StatusPath
	if statusPath == "" {
		statusPath = "/status"
	}
	return &HTTPLane{
		id:         cfg.ID,
		client:     client,
		authSecret: cfg.AuthSecret,
		statusPath: statusPath,
	}, nil
}

// ID implements Lane.
func (l *HTTPLane) ID() string {
	return l.id
}

// Authenticated reports whether the lane signs its submissions.
func (l *HTTPLane) Authenticated() bool {
	return l.authSecret != ""
}

// SubmitBundle implements Lane: POST the plan, return the acknowledged
// bundle hash. An acknowledgement without a bundle hash is a failure.
func (l *HTTPLane) SubmitBundle(ctx context.Context, plan *bundle.Plan) (string, error) {
	body, err := json.Marshal(plan)
	if err != nil {
		return "", errors.Wrap(err, "could not marshal bundle plan")
	}
	var opts []ReqOption
	if l.authSecret != "" {
		token, err := l.bearerToken()
		if err != nil {
			return "", err
		}
		opts = append(opts, WithBearerToken(token))
	}
	resp, err := l.client.Post(ctx, "/bundles", body, opts...)
	if err != nil {
		return "", err
	}
	var ack submitAck
	if err := json.Unmarshal(resp, &ack); err != nil {
		return "", errors.Wrap(err, "could not decode relay acknowledgement")
	}
	if ack.BundleHash == "" {
		return "", errors.New("relay acknowledgement missing bundle hash")
	}
	return ack.BundleHash, nil
}

// CheckStatus probes the lane's status endpoint, returning the observed
// round trip time.
func (l *HTTPLane) CheckStatus(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := l.client.Get(ctx, l.statusPath); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// bearerToken mints a short-lived signed token for the submission.
func (l *HTTPLane) bearerToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		Subject:   l.id,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.authSecret))
	if err != nil {
		return "", errors.Wrap(err, "could not sign lane bearer token")
	}
	return token, nil
}
