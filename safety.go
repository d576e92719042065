package mimir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
)

type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

var severityNames = []string{"none", "low", "medium", "high"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}

	return "high"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for i, name := range severityNames {
		if strings.EqualFold(name, string(b)) {
			*s = Severity(i)
			return nil
		}
	}

	// "warning" / "error" are the service's older names
	switch strings.ToLower(string(b)) {
	case "warning":
		*s = SeverityMedium
	case "error", "danger", "critical":
		*s = SeverityHigh
	default:
		return fmt.Errorf("unknown severity %q", b)
	}

	return nil
}

type SafetyLevel struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// AutoConfirm reports whether the confirmation gate can be passed without
// asking the user.
func (l *SafetyLevel) AutoConfirm() bool {
	return l != nil && l.Severity == SeverityNone
}

type SafetyChecker interface {
	SafetyCheck(ctx context.Context, network, callHex string) (*SafetyLevel, error)
}

// DefaultSafeSections never reach the remote safety check. Wrapper pallets
// (utility, multisig, proxy) are left out as they can carry any call.
var DefaultSafeSections = []string{
	"system",
	"scheduler",
	"balances",
	"staking",
	"session",
	"treasury",
	"democracy",
	"council",
	"technicalcommittee",
	"phragmenelection",
	"elections",
	"technicalmembership",
	"bounties",
	"childbounties",
	"tips",
	"referenda",
	"convictionvoting",
	"whitelist",
	"fellowshipcollective",
	"fellowshipreferenda",
	"identity",
	"preimage",
	"nominationpools",
	"vesting",
	"indices",
}

type SafetyClassifier struct {
	checker  SafetyChecker
	sections []string
	timeout  time.Duration
	retries  int
}

type SafetyOption func(*SafetyClassifier)

func WithSafeSections(sections ...string) SafetyOption {
	return func(c *SafetyClassifier) {
		c.sections = make([]string, 0, len(sections))
		for _, s := range sections {
			c.sections = append(c.sections, normalizeName(s))
		}
	}
}

// WithSafetyTimeout bounds each attempt of the remote check.
func WithSafetyTimeout(d time.Duration) SafetyOption {
	return func(c *SafetyClassifier) {
		c.timeout = d
	}
}

// WithSafetyRetry sets how many times a transport failure is retried; at
// most once.
func WithSafetyRetry(retries int) SafetyOption {
	return func(c *SafetyClassifier) {
		c.retries = min(max(retries, 0), 1)
	}
}

func NewSafetyClassifier(checker SafetyChecker, opts ...SafetyOption) *SafetyClassifier {
	c := &SafetyClassifier{
		checker:  checker,
		sections: DefaultSafeSections,
		timeout:  10 * time.Second,
		retries:  1,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *SafetyClassifier) IsSafeSection(section string) bool {
	return govalidator.IsIn(normalizeName(section), c.sections...)
}

// Classify returns the safety level of call. Calls of allow-listed
// sections are safe without any network call; everything else goes to the
// checker and any failure is returned, never treated as safe.
func (c *SafetyClassifier) Classify(ctx context.Context, network string, call *Call) (*SafetyLevel, error) {
	if call == nil {
		return nil, errors.New("nil call")
	}

	if c.IsSafeSection(call.Section) {
		return &SafetyLevel{Severity: SeverityNone}, nil
	}

	if call.Data == "" {
		return nil, fmt.Errorf("call %s has no data to check", call.Name())
	}

	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		var level *SafetyLevel
		level, err = c.check(ctx, network, call.Data)
		if err == nil {
			return level, nil
		}

		if IsResponseError(err) || ctx.Err() != nil {
			break
		}

		slog.Warn("safety: check failed",
			slog.String("network", network),
			slog.String("call", call.Name()),
			slog.Int("attempt", attempt+1),
			slog.Any("err", err),
		)
	}

	return nil, fmt.Errorf("safety check %s: %w", call.Name(), err)
}

func (c *SafetyClassifier) check(ctx context.Context, network, data string) (*SafetyLevel, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	level, err := c.checker.SafetyCheck(ctx, network, data)
	if err != nil {
		return nil, err
	}

	if level == nil {
		return nil, errors.New("empty safety level")
	}

	return level, nil
}
